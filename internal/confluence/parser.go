package confluence

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Block 按标题切分出的一段正文。HeadingPath是从最外层标题到本节标题的有序路径，
// 首个标题之前的引导内容路径为空。
type Block struct {
	HeadingPath []string
	Text        string
}

// SectionTitle 本节自身的标题（路径最后一项），无标题返回空串
func (b Block) SectionTitle() string {
	if len(b.HeadingPath) == 0 {
		return ""
	}
	return b.HeadingPath[len(b.HeadingPath)-1]
}

// 导航、脚本等噪声元素，解析前整体剔除
const skipSelector = "script, style, nav, header, footer, noscript, iframe"

// 作为段落收集的块级元素
const blockSelector = "p, li, pre, blockquote, td, th, dd, dt"

const headingSelector = "h1, h2, h3, h4, h5, h6"

var spaceRe = regexp.MustCompile(`\s+`)

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// ParseStorage 将Confluence storage格式HTML解析为按标题切分的Block序列。
// 全部Block正文按序拼接即为去除结构标记后的页面正文（空白归一化后）。
func ParseStorage(html string) ([]Block, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	doc.Find(skipSelector).Remove()

	type section struct {
		path       []string
		paragraphs []string
	}

	// 标题栈：headingStack[i] = {level, title}
	type stackEntry struct {
		level int
		title string
	}
	var stack []stackEntry
	currentPath := func() []string {
		path := make([]string, len(stack))
		for i, e := range stack {
			path[i] = e.title
		}
		return path
	}

	sections := []*section{{path: nil}}
	current := sections[0]

	doc.Find(headingSelector + ", " + blockSelector).Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		if lvl := headingLevel(tag); lvl > 0 {
			title := normalizeWhitespace(sel.Text())
			if title == "" {
				return
			}
			// 弹出同级及更深的标题，保持祖先路径正确
			for len(stack) > 0 && stack[len(stack)-1].level >= lvl {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, stackEntry{level: lvl, title: title})
			current = &section{path: currentPath()}
			sections = append(sections, current)
			return
		}

		// 嵌套块级元素由其子元素贡献文本，跳过父容器避免正文重复
		if sel.Find(blockSelector).Length() > 0 {
			return
		}
		text := normalizeWhitespace(sel.Text())
		if text == "" {
			return
		}
		current.paragraphs = append(current.paragraphs, text)
	})

	// 整页没有任何块级元素时退化为纯文本提取
	if len(sections) == 1 && len(sections[0].paragraphs) == 0 {
		body := normalizeWhitespace(doc.Text())
		if body == "" {
			return nil, nil
		}
		return []Block{{Text: body}}, nil
	}

	blocks := make([]Block, 0, len(sections))
	for _, s := range sections {
		text := strings.Join(s.paragraphs, "\n\n")
		if text == "" {
			continue
		}
		blocks = append(blocks, Block{HeadingPath: s.path, Text: text})
	}
	return blocks, nil
}
