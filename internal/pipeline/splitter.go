package pipeline

import (
	"strings"
	"unicode/utf8"

	"insight-qa-go/pkg/youtube"
)

// defaultSeparators 按优先级排列，最后的空串表示按字符窗口切分。
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter 递归地按分隔符切分文本，长度以字符（rune）计。
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewSplitter 创建一个使用默认分隔符的切分器。
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	return &Splitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap, Separators: defaultSeparators}
}

// Split 切分文本，结果中不含空白片段。
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" {
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return splitText(text, s.ChunkSize, s.ChunkOverlap)
	}

	var (
		chunks []string
		good   []string
	)
	for _, piece := range splitKeep(text, sep) {
		if utf8.RuneCountInString(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}
	return chunks
}

// merge 把小片段合并为不超过 ChunkSize 的块，相邻块之间保留最多 ChunkOverlap 的重叠。
func (s *Splitter) merge(pieces []string) []string {
	var (
		out     []string
		current []string
		total   int
	)
	flush := func() {
		if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
			out = append(out, doc)
		}
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n > s.ChunkSize && len(current) > 0 {
			flush()
			for len(current) > 0 && (total > s.ChunkOverlap || total+n > s.ChunkSize) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	flush()
	return out
}

// splitKeep 按 sep 切分，分隔符保留在后一段的开头。
func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitText 将长文本按指定大小和重叠进行切分。
func splitText(text string, chunkSize int, chunkOverlap int) []string {
	if chunkSize <= chunkOverlap {
		return simpleSplit(text, chunkSize)
	}

	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func simpleSplit(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 || chunkSize <= 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// segmentChunk 是由连续字幕条拼成的块。
type segmentChunk struct {
	Text  string
	Start float64
}

// splitSegments 顺序合并字幕条直到达到 chunkSize，下一块从末尾不超过 chunkOverlap 的字幕条开始。
// 每块的起始时间是其第一条字幕的时间。
func splitSegments(segments []youtube.Segment, chunkSize, chunkOverlap int) []segmentChunk {
	var (
		out     []segmentChunk
		current []youtube.Segment
		total   int
	)
	length := func(seg youtube.Segment) int { return utf8.RuneCountInString(seg.Text) + 1 }
	flush := func() {
		parts := make([]string, len(current))
		for i, seg := range current {
			parts[i] = seg.Text
		}
		if text := strings.TrimSpace(strings.Join(parts, " ")); text != "" {
			out = append(out, segmentChunk{Text: text, Start: current[0].Start})
		}
	}
	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		n := length(seg)
		if total+n > chunkSize && len(current) > 0 {
			flush()
			keep := 0
			carried := 0
			for i := len(current) - 1; i > 0; i-- {
				if carried+length(current[i]) > chunkOverlap {
					break
				}
				carried += length(current[i])
				keep++
			}
			current = append([]youtube.Segment(nil), current[len(current)-keep:]...)
			total = carried
		}
		current = append(current, seg)
		total += n
	}
	if len(current) > 0 {
		flush()
	}
	return out
}
