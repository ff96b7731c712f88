package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/hitoshi/placement/internal/model"
)

// URLGuard は企業が登録する外部URL（企業サイト・採用フィード）へのアクセスを制限する。
type URLGuard interface {
	// Client はプライベートアドレスへの接続を拒否するHTTPクライアントを返す。
	// DNS解決後のIPアドレスもsafeurlのDialerで検証される。
	Client(timeout time.Duration) *http.Client

	// Validate はDNS解決前の静的検証を行う。
	// 形式不正はValidation、内部アドレスはForbiddenの*model.APIErrorを返す。
	Validate(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドのメタデータIPを含む
	"100.64.0.0/10",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostSuffixes = []string{"localhost", ".local", ".internal"}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid CIDR: " + cidr)
		}
		networks = append(networks, network)
	}
	return networks
}

type urlGuard struct{}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() URLGuard {
	return &urlGuard{}
}

func (g *urlGuard) Client(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

func (g *urlGuard) Validate(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return model.NewInvalidURLError("URL is empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.NewInvalidURLError(err.Error())
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return model.NewInvalidURLError("scheme must be http or https")
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return model.NewInvalidURLError("host is empty")
	}
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		return model.NewSSRFBlockedError()
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return model.NewSSRFBlockedError()
			}
		}
		return nil
	}
	for _, suffix := range blockedHostSuffixes {
		if host == strings.TrimPrefix(suffix, ".") || strings.HasSuffix(host, suffix) {
			return model.NewSSRFBlockedError()
		}
	}
	return nil
}
