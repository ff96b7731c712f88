// Package careers は企業の採用フィード（RSS/Atom）の検出と、
// フィードからの募集の取り込みを提供する。
package careers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/placement/internal/model"
	"github.com/hitoshi/placement/internal/security"
)

const (
	detectTimeout    = 10 * time.Second
	maxDetectBody    = 2 * 1024 * 1024
	userAgent        = "PlacementBot/1.0 (+careers-feed)"
	feedAcceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, text/html;q=0.8"
)

// feedLink は企業サイトのheadから検出したフィードリンク。
type feedLink struct {
	URL  string
	Atom bool
}

// Detector は企業サイトまたはフィードのURLから採用フィードのURLを特定する。
type Detector struct {
	guard security.URLGuard
}

// NewDetector はDetectorを生成する。
func NewDetector(guard security.URLGuard) *Detector {
	return &Detector{guard: guard}
}

// Discover はURLがフィードであればそのまま、HTMLであればheadのalternateリンクから
// フィードURLを返す。見つからない場合はFeedNotDetectedを返す。
func (d *Detector) Discover(ctx context.Context, pageURL string) (string, error) {
	if err := d.guard.Validate(pageURL); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", feedAcceptHeader)

	resp, err := d.guard.Client(detectTimeout).Do(req)
	if err != nil {
		return "", model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewFetchFailedError(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetectBody))
	if err != nil {
		return "", model.NewFetchFailedError(err.Error())
	}

	contentType := resp.Header.Get("Content-Type")
	if isFeed(contentType, body) {
		return pageURL, nil
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.Contains(strings.ToLower(mediaType), "html") {
		return "", model.NewFeedNotDetectedError(pageURL)
	}

	best := selectFeed(parseFeedLinks(body, pageURL), pageURL)
	if best == "" {
		return "", model.NewFeedNotDetectedError(pageURL)
	}
	// リンク先も外部URLのため同じ検証を通す
	if err := d.guard.Validate(best); err != nil {
		return "", err
	}
	return best, nil
}

// isFeed はContent-Typeとボディの先頭からRSS/Atomかどうかを判定する。
func isFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	switch strings.ToLower(mediaType) {
	case "application/rss+xml", "application/atom+xml":
		return true
	case "text/xml", "application/xml":
	default:
		return false
	}

	n := len(body)
	if n > 4096 {
		n = 4096
	}
	prefix := strings.ToLower(string(body[:n]))
	return strings.Contains(prefix, "<rss") ||
		strings.Contains(prefix, "<rdf:rdf") ||
		(strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom"))
}

// parseFeedLinks はHTMLのheadからrel="alternate"のRSS/Atomリンクを抽出する。
// 相対URLはbaseURLで解決する。
func parseFeedLinks(body []byte, baseURL string) []feedLink {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []feedLink
	z := html.NewTokenizer(bytes.NewReader(body))
	inHead := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return links
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "head":
				inHead = true
				continue
			case "body":
				return links
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, typ, href string
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				switch strings.ToLower(string(k)) {
				case "rel":
					rel = strings.ToLower(string(v))
				case "type":
					typ = strings.ToLower(string(v))
				case "href":
					href = string(v)
				}
			}
			if rel != "alternate" || href == "" {
				continue
			}
			if typ != "application/rss+xml" && typ != "application/atom+xml" {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			links = append(links, feedLink{
				URL:  base.ResolveReference(ref).String(),
				Atom: typ == "application/atom+xml",
			})
		}
	}
}

// selectFeed は同一ホスト、Atom、出現順の優先度で1件選ぶ。
func selectFeed(links []feedLink, pageURL string) string {
	if len(links) == 0 {
		return ""
	}
	host := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, l := range links {
		score := 0
		if hostOf(l.URL) == host {
			score += 100
		}
		if l.Atom {
			score += 10
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return links[best].URL
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
