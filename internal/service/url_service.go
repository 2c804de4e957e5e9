package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ai-assist-go/internal/config"
	"ai-assist-go/internal/model"
	"ai-assist-go/pkg/cache"
	"ai-assist-go/pkg/errs"
	"ai-assist-go/pkg/log"

	"golang.org/x/net/html"
)

// urlPattern 从问题文本中提取 http/https URL。
// 字符类覆盖主机、端口、路径、查询与百分号编码，保证提取出的 URL 可直接抓取。
var urlPattern = regexp.MustCompile(`https?://[\w\-._~:/?#@!$&'()*+,;=%]+`)

// 剔除的页面骨架元素与保留文本的元素集合。
var (
	skippedElements = map[string]bool{
		"script": true, "style": true, "nav": true, "footer": true, "header": true,
	}
	textElements = map[string]bool{
		"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "li": true,
	}
)

// URLService 负责问题中 URL 的提取、抓取与正文抽取。
// 单个 URL 的失败只产生软错误说明，不会中断问答。
type URLService struct {
	client         *http.Client
	cache          *cache.Cache
	maxContentSize int64
}

// NewURLService 创建 URL 服务。超时与正文大小上限来自配置。
func NewURLService(cfg config.URLFetchConfig, c *cache.Cache) *URLService {
	return &URLService{
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		cache:          c,
		maxContentSize: cfg.MaxContentSize,
	}
}

// ExtractURLs 返回文本中出现的所有 URL，保持出现顺序。
func (s *URLService) ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// ExtractAndProcess 提取问题中的 URL 并逐个抓取。
// 成功的正文进入 Contents，失败的 URL 以可读说明进入 Errors。
func (s *URLService) ExtractAndProcess(ctx context.Context, text string) *model.URLResult {
	result := &model.URLResult{}
	for _, u := range s.ExtractURLs(text) {
		content, err := s.FetchURLContent(ctx, u)
		if err != nil {
			log.Warnf("[URLService] 抓取 URL 失败: %s, error: %v", u, err)
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to fetch URL %s: %v", u, err))
			continue
		}
		result.Contents = append(result.Contents, content)
	}
	return result
}

// FetchURLContent 抓取单个 URL 并抽取正文，结果写入缓存。
// 仅接受 text/html；Content-Length 与实际读取量都受 maxContentSize 约束。
func (s *URLService) FetchURLContent(ctx context.Context, rawURL string) (string, error) {
	cacheKey := s.cache.Key("url", rawURL)
	if cached, ok := s.cache.Get(ctx, cacheKey); ok {
		return cached, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", errs.ErrValidation, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return "", fmt.Errorf("%w: fetching %s", errs.ErrTimeout, rawURL)
		}
		return "", fmt.Errorf("%w: %v", errs.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: url returned status %s", errs.ErrUpstream, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/html") {
		return "", fmt.Errorf("%w: unsupported content type %q", errs.ErrValidation, contentType)
	}

	if resp.ContentLength > s.maxContentSize {
		return "", fmt.Errorf("%w: content too large: %d bytes", errs.ErrValidation, resp.ContentLength)
	}

	// 实际读取量同样受上限约束，防止缺失 Content-Length 的超大响应
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxContentSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", errs.ErrUpstream, err)
	}
	if int64(len(body)) > s.maxContentSize {
		return "", fmt.Errorf("%w: content too large: exceeds %d bytes", errs.ErrValidation, s.maxContentSize)
	}

	content, err := extractTextFromHTML(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("%w: parsing html: %v", errs.ErrUpstream, err)
	}

	s.cache.Set(ctx, cacheKey, content)
	return content, nil
}

// extractTextFromHTML 保留 p/h1-h6/li 的文本，跳过 script/style/nav/footer/header。
func extractTextFromHTML(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skippedElements[n.Data] {
				return
			}
			if textElements[n.Data] {
				text := strings.TrimSpace(collectText(n))
				if text != "" {
					lines = append(lines, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(lines, "\n"), nil
}

// collectText 拼接节点子树内的全部文本内容。
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
