package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/di"
	"github.com/cavco/helpdesk-go/internal/logger"
	"github.com/cavco/helpdesk-go/internal/rag"
)

// chat 命令行交互入口：一条输入走一次完整决策管道，打印回答和引用来源
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitLogger(); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	container := di.InitContainer()
	if err := di.RegisterProviders(container, cfg); err != nil {
		logger.Fatal("failed to register providers", zap.Error(err))
	}

	err = di.Invoke(func(service *rag.ChatService) error {
		runREPL(service)
		return nil
	})
	if err != nil {
		logger.Fatal("failed to start chat", zap.Error(err))
	}
}

func runREPL(service *rag.ChatService) {
	conversationID := uuid.NewString()
	var history []rag.ChatMessage

	fmt.Println("IT help desk assistant. Type your question, or 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			return
		}

		decision := service.Handle(context.Background(), conversationID, query, history)
		fmt.Println()
		fmt.Println(decision.AnswerText)
		if len(decision.RetrievedChunks) > 0 && decision.AnswerType == rag.AnswerRAG {
			fmt.Println("\nSources:")
			seen := map[string]bool{}
			for _, chunk := range decision.RetrievedChunks {
				if seen[chunk.PageID] {
					continue
				}
				seen[chunk.PageID] = true
				fmt.Printf("  - %s (%s)\n", chunk.PageTitle, chunk.URL)
			}
		}
		fmt.Println()

		// 只有真正回答了的轮次进入历史，升级/跑题不污染上下文
		if decision.AnswerType == rag.AnswerGeneric || decision.AnswerType == rag.AnswerRAG {
			history = append(history,
				rag.ChatMessage{Role: "user", Content: query},
				rag.ChatMessage{Role: "assistant", Content: decision.AnswerText})
			if len(history) > 12 {
				history = history[len(history)-12:]
			}
		}
	}
}
