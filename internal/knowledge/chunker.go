package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cavco/helpdesk-go/internal/config"
	"github.com/cavco/helpdesk-go/internal/confluence"
)

// Chunk 检索的原子单元。ID由页面id、标题路径哈希和页面内序号确定性生成，
// 相同输入重复分块必然得到相同的(ID, Text)序列。
type Chunk struct {
	ID           string
	Text         string
	SectionTitle string
	HeadingPath  []string
	Ordinal      int
	TokenCount   int
}

// Chunker 结构感知分块器：小节够小则整节一块，过大则按段落/句子递归切分并保留重叠，
// 相邻小块合并避免碎片化。
type Chunker struct {
	minTokens  int
	maxTokens  int
	overlapMin int
	overlapMax int
}

// NewChunker 创建分块器
func NewChunker(cfg config.ChunkingConfig) *Chunker {
	minTokens := cfg.MinTokens
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 600
	}
	if minTokens <= 0 || minTokens >= maxTokens {
		minTokens = maxTokens * 2 / 3
	}
	overlapMin := cfg.OverlapMin
	overlapMax := cfg.OverlapMax
	if overlapMax <= 0 {
		overlapMax = 100
	}
	if overlapMin <= 0 || overlapMin > overlapMax {
		overlapMin = overlapMax / 2
	}
	return &Chunker{
		minTokens:  minTokens,
		maxTokens:  maxTokens,
		overlapMin: overlapMin,
		overlapMax: overlapMax,
	}
}

// CountTokens 近似token数（英文约4字符一个token）
func CountTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 && strings.TrimSpace(text) != "" {
		return 1
	}
	return n
}

// ChunkPage 将一个页面的Block序列切分为带稳定id的Chunk序列。
// 空页面返回nil而非错误。
func (c *Chunker) ChunkPage(pageID string, blocks []confluence.Block) []Chunk {
	var chunks []Chunk
	for _, b := range blocks {
		chunks = append(chunks, c.blockToChunks(b)...)
	}
	chunks = c.mergeSmall(chunks)

	for i := range chunks {
		chunks[i].Ordinal = i
		chunks[i].ID = chunkID(pageID, chunks[i].HeadingPath, i)
	}
	return chunks
}

func (c *Chunker) blockToChunks(b confluence.Block) []Chunk {
	title := b.SectionTitle()
	text := strings.TrimSpace(b.Text)
	if text == "" {
		return nil
	}
	// 标题并入正文，保证小节上下文随块可见
	if title != "" {
		text = title + "\n\n" + text
	}
	if tokens := CountTokens(text); tokens <= c.maxTokens {
		return []Chunk{{
			Text:         text,
			SectionTitle: title,
			HeadingPath:  b.HeadingPath,
			TokenCount:   tokens,
		}}
	}
	return c.splitWithOverlap(text, title, b.HeadingPath)
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)
var sentenceRe = regexp.MustCompile(`(?:[.!?。！？])\s+`)

// splitWithOverlap 先按段落、必要时按句子切分，块之间携带词级重叠，
// 保证切分边界不丢失上下文。
func (c *Chunker) splitWithOverlap(text, title string, path []string) []Chunk {
	parts := c.splitUnits(text)

	var chunks []Chunk
	var buffer string
	var overlap string

	flush := func() {
		if buffer == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Text:         buffer,
			SectionTitle: title,
			HeadingPath:  path,
			TokenCount:   CountTokens(buffer),
		})
		// 重叠目标按token计，从尾部取整词直到覆盖目标
		target := CountTokens(buffer) / 2
		if target > c.overlapMax {
			target = c.overlapMax
		}
		if target < c.overlapMin {
			target = c.overlapMin
		}
		words := strings.Fields(buffer)
		taken, chars := 0, 0
		for i := len(words) - 1; i >= 0; i-- {
			chars += len(words[i]) + 1
			taken++
			if chars/4 >= target {
				break
			}
		}
		overlap = strings.Join(words[len(words)-taken:], " ")
		buffer = ""
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		candidate := part
		if buffer != "" {
			candidate = buffer + "\n\n" + part
		}
		if CountTokens(candidate) <= c.maxTokens {
			buffer = candidate
			continue
		}
		flush()
		// 重叠并入后仍需守住上限，放不下就舍弃重叠
		if overlap != "" && CountTokens(overlap+"\n\n"+part) <= c.maxTokens {
			buffer = overlap + "\n\n" + part
		} else {
			buffer = part
		}
	}
	flush()
	return chunks
}

// splitUnits 段落优先切分；单段仍超限则降级到句子边界，
// 无句读的长文本最后按词硬切，保证任何单元都不超上限
func (c *Chunker) splitUnits(text string) []string {
	var units []string
	for _, para := range paragraphRe.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if CountTokens(para) <= c.maxTokens {
			units = append(units, para)
			continue
		}
		for _, sentence := range splitSentences(para) {
			if CountTokens(sentence) <= c.maxTokens {
				units = append(units, sentence)
				continue
			}
			units = append(units, c.splitByWords(sentence)...)
		}
	}
	return units
}

// splitByWords 按词聚合到上限以内，预留重叠的余量
func (c *Chunker) splitByWords(text string) []string {
	limit := (c.maxTokens - c.overlapMax) * 4
	if limit <= 0 {
		limit = c.maxTokens * 4
	}

	var units []string
	var cur []string
	curLen := 0
	for _, word := range strings.Fields(text) {
		if curLen+len(word)+1 > limit && len(cur) > 0 {
			units = append(units, strings.Join(cur, " "))
			cur = nil
			curLen = 0
		}
		cur = append(cur, word)
		curLen += len(word) + 1
	}
	if len(cur) > 0 {
		units = append(units, strings.Join(cur, " "))
	}
	return units
}

func splitSentences(text string) []string {
	bounds := sentenceRe.FindAllStringIndex(text, -1)
	if len(bounds) == 0 {
		return []string{text}
	}
	var out []string
	prev := 0
	for _, b := range bounds {
		out = append(out, strings.TrimSpace(text[prev:b[1]]))
		prev = b[1]
	}
	if rest := strings.TrimSpace(text[prev:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// mergeSmall 合并连续的小块：合并后不超上限且其中一块低于下限时合并，
// 让块尺寸靠近目标区间，避免一堆碎块
func (c *Chunker) mergeSmall(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return nil
	}
	merged := make([]Chunk, 0, len(chunks))
	buffer := chunks[0]
	for _, next := range chunks[1:] {
		combined := buffer.TokenCount + CountTokens("\n\n") + next.TokenCount
		shouldMerge := combined <= c.maxTokens &&
			buffer.TokenCount < c.minTokens &&
			sameOrNested(buffer.HeadingPath, next.HeadingPath)
		if shouldMerge {
			text := buffer.Text + "\n\n" + next.Text
			title := buffer.SectionTitle
			if next.SectionTitle != "" && next.SectionTitle != title {
				if title == "" {
					title = next.SectionTitle
				} else {
					title = title + " | " + next.SectionTitle
				}
			}
			buffer = Chunk{
				Text:         text,
				SectionTitle: title,
				HeadingPath:  buffer.HeadingPath,
				TokenCount:   CountTokens(text),
			}
			continue
		}
		merged = append(merged, buffer)
		buffer = next
	}
	return append(merged, buffer)
}

// sameOrNested 两个标题路径相同，或一个是另一个的前缀（嵌套小节）
func sameOrNested(a, b []string) bool {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	for i := range short {
		if short[i] != long[i] {
			return false
		}
	}
	return true
}

// chunkID 稳定chunk id：字节一致的输入永远得到一致的id（幂等重建索引的前提）
func chunkID(pageID string, headingPath []string, ordinal int) string {
	raw := fmt.Sprintf("%s|%s|%d", pageID, strings.Join(headingPath, "/"), ordinal)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s_%s_%d", pageID, hex.EncodeToString(sum[:])[:16], ordinal)
}
