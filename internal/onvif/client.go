// internal/onvif/client.go
package onvif

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	devicePath       = "/onvif/device_service"
	defaultMediaPath = "/onvif/media_service"
	soapContentType  = "application/soap+xml; charset=utf-8"
)

var ErrNoProfiles = errors.New("onvif: device returned no media profiles")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Scheme é "http" por padrão.
	Scheme  string
	Timeout time.Duration
}

type Client struct {
	http *resty.Client
	cfg  Config
	now  func() time.Time
}

type DeviceInfo struct {
	Manufacturer    string `xml:"Manufacturer" json:"manufacturer"`
	Model           string `xml:"Model" json:"model"`
	FirmwareVersion string `xml:"FirmwareVersion" json:"firmware"`
	SerialNumber    string `xml:"SerialNumber" json:"serial"`
	HardwareID      string `xml:"HardwareId" json:"hardware_id"`
}

type Profile struct {
	Token   string `xml:"token,attr"`
	Name    string `xml:"Name"`
	Encoder *struct {
		Resolution struct {
			Width  int `xml:"Width"`
			Height int `xml:"Height"`
		} `xml:"Resolution"`
	} `xml:"VideoEncoderConfiguration"`
}

func (p Profile) Resolution() string {
	if p.Encoder == nil || p.Encoder.Resolution.Width == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%dx%d", p.Encoder.Resolution.Width, p.Encoder.Resolution.Height)
}

// Stream é um perfil com a URL RTSP pronta para o camera.Manager.
type Stream struct {
	ProfileName  string `json:"profile_name"`
	ProfileToken string `json:"profile_token"`
	RTSPURL      string `json:"rtsp_url"`
	Resolution   string `json:"resolution"`
}

func New(cfg Config) *Client {
	if cfg.Scheme == "" {
		cfg.Scheme = "http"
	}
	if cfg.Port == 0 {
		cfg.Port = 80
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	r := resty.New()
	r.SetBaseURL(fmt.Sprintf("%s://%s", cfg.Scheme, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))))
	r.SetHeader("Content-Type", soapContentType)
	r.SetTimeout(cfg.Timeout)
	// câmeras costumam ter certificado autoassinado
	r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

	return &Client{http: r, cfg: cfg, now: time.Now}
}

func (c *Client) DeviceInformation(ctx context.Context) (DeviceInfo, error) {
	var env envelope
	if err := c.call(ctx, devicePath, `<tds:GetDeviceInformation xmlns:tds="http://www.onvif.org/ver10/device/wsdl"/>`, &env); err != nil {
		return DeviceInfo{}, err
	}
	if env.Body.DeviceInformation == nil {
		return DeviceInfo{}, fmt.Errorf("onvif: empty GetDeviceInformation response")
	}
	return *env.Body.DeviceInformation, nil
}

// MediaPath pergunta ao device onde fica o serviço de mídia; cai no caminho
// padrão se ele não informar.
func (c *Client) MediaPath(ctx context.Context) string {
	var env envelope
	body := `<tds:GetCapabilities xmlns:tds="http://www.onvif.org/ver10/device/wsdl"><tds:Category>Media</tds:Category></tds:GetCapabilities>`
	if err := c.call(ctx, devicePath, body, &env); err != nil || env.Body.Capabilities == nil {
		return defaultMediaPath
	}
	u, err := url.Parse(strings.TrimSpace(env.Body.Capabilities.Media.XAddr))
	if err != nil || u.Path == "" {
		return defaultMediaPath
	}
	return u.Path
}

func (c *Client) Profiles(ctx context.Context, mediaPath string) ([]Profile, error) {
	var env envelope
	if err := c.call(ctx, mediaPath, `<trt:GetProfiles xmlns:trt="http://www.onvif.org/ver10/media/wsdl"/>`, &env); err != nil {
		return nil, err
	}
	if env.Body.Profiles == nil || len(env.Body.Profiles.Profiles) == 0 {
		return nil, ErrNoProfiles
	}
	return env.Body.Profiles.Profiles, nil
}

func (c *Client) StreamURI(ctx context.Context, mediaPath, profileToken string) (string, error) {
	var b strings.Builder
	b.WriteString(`<trt:GetStreamUri xmlns:trt="http://www.onvif.org/ver10/media/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema">`)
	b.WriteString(`<trt:StreamSetup><tt:Stream>RTP-Unicast</tt:Stream><tt:Transport><tt:Protocol>RTSP</tt:Protocol></tt:Transport></trt:StreamSetup>`)
	b.WriteString(`<trt:ProfileToken>`)
	_ = xml.EscapeText(&b, []byte(profileToken))
	b.WriteString(`</trt:ProfileToken></trt:GetStreamUri>`)

	var env envelope
	if err := c.call(ctx, mediaPath, b.String(), &env); err != nil {
		return "", err
	}
	if env.Body.StreamURI == nil || strings.TrimSpace(env.Body.StreamURI.MediaURI.URI) == "" {
		return "", fmt.Errorf("onvif: empty stream uri for profile %s", profileToken)
	}
	return strings.TrimSpace(env.Body.StreamURI.MediaURI.URI), nil
}

// Discover lista os perfis e devolve uma URL RTSP por perfil. Perfis cuja
// URL falhar são pulados.
func (c *Client) Discover(ctx context.Context) ([]Stream, error) {
	mediaPath := c.MediaPath(ctx)
	profiles, err := c.Profiles(ctx, mediaPath)
	if err != nil {
		return nil, err
	}

	var out []Stream
	var lastErr error
	for _, p := range profiles {
		uri, err := c.StreamURI(ctx, mediaPath, p.Token)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, Stream{
			ProfileName:  p.Name,
			ProfileToken: p.Token,
			RTSPURL:      c.fixURI(uri),
			Resolution:   p.Resolution(),
		})
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// fixURI troca loopback pelo host real e injeta as credenciais.
func (c *Client) fixURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	if h := u.Hostname(); h == "127.0.0.1" || h == "localhost" {
		if p := u.Port(); p != "" {
			u.Host = net.JoinHostPort(c.cfg.Host, p)
		} else {
			u.Host = c.cfg.Host
		}
	}
	if u.User == nil && c.cfg.Username != "" && strings.HasPrefix(u.Scheme, "rtsp") {
		u.User = url.UserPassword(c.cfg.Username, c.cfg.Password)
	}
	return u.String()
}

func (c *Client) call(ctx context.Context, path, body string, out *envelope) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(c.envelope(body)).
		Post(path)
	if err != nil {
		return fmt.Errorf("onvif %s: %w", path, err)
	}
	if err := xml.Unmarshal(resp.Body(), out); err != nil {
		if resp.IsError() {
			return fmt.Errorf("onvif %s: status %d", path, resp.StatusCode())
		}
		return fmt.Errorf("onvif %s: decode response: %w", path, err)
	}
	if f := out.Body.Fault; f != nil {
		return fmt.Errorf("onvif %s: fault: %s", path, strings.TrimSpace(f.Reason.Text))
	}
	if resp.IsError() {
		return fmt.Errorf("onvif %s: status %d", path, resp.StatusCode())
	}
	return nil
}

func (c *Client) envelope(body string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope">`)
	if c.cfg.Username != "" {
		b.WriteString(`<s:Header>`)
		b.WriteString(c.security())
		b.WriteString(`</s:Header>`)
	}
	b.WriteString(`<s:Body>`)
	b.WriteString(body)
	b.WriteString(`</s:Body></s:Envelope>`)
	return b.String()
}

// security monta o UsernameToken com PasswordDigest:
// base64(sha1(nonce + created + password)).
func (c *Client) security() string {
	nonce := make([]byte, 16)
	_, _ = rand.Read(nonce)
	created := c.now().UTC().Format("2006-01-02T15:04:05.000Z")

	var b strings.Builder
	b.WriteString(`<wsse:Security s:mustUnderstand="1" xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd" xmlns:wsu="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">`)
	b.WriteString(`<wsse:UsernameToken><wsse:Username>`)
	_ = xml.EscapeText(&b, []byte(c.cfg.Username))
	b.WriteString(`</wsse:Username>`)
	b.WriteString(`<wsse:Password Type="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest">`)
	b.WriteString(PasswordDigest(nonce, created, c.cfg.Password))
	b.WriteString(`</wsse:Password>`)
	b.WriteString(`<wsse:Nonce EncodingType="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary">`)
	b.WriteString(base64.StdEncoding.EncodeToString(nonce))
	b.WriteString(`</wsse:Nonce><wsu:Created>`)
	b.WriteString(created)
	b.WriteString(`</wsu:Created></wsse:UsernameToken></wsse:Security>`)
	return b.String()
}

func PasswordDigest(nonce []byte, created, password string) string {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

type envelope struct {
	Body struct {
		Fault *struct {
			Reason struct {
				Text string `xml:"Text"`
			} `xml:"Reason"`
		} `xml:"Fault"`
		DeviceInformation *DeviceInfo `xml:"GetDeviceInformationResponse"`
		Capabilities      *struct {
			Media struct {
				XAddr string `xml:"XAddr"`
			} `xml:"Capabilities>Media"`
		} `xml:"GetCapabilitiesResponse"`
		Profiles *struct {
			Profiles []Profile `xml:"Profiles"`
		} `xml:"GetProfilesResponse"`
		StreamURI *struct {
			MediaURI struct {
				URI string `xml:"Uri"`
			} `xml:"MediaUri"`
		} `xml:"GetStreamUriResponse"`
	} `xml:"Body"`
}
