package onvif

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const soapWrap = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://www.w3.org/2003/05/soap-envelope" xmlns:tds="http://www.onvif.org/ver10/device/wsdl" xmlns:trt="http://www.onvif.org/ver10/media/wsdl" xmlns:tt="http://www.onvif.org/ver10/schema">
<SOAP-ENV:Body>%s</SOAP-ENV:Body></SOAP-ENV:Envelope>`

var (
	nonceRe   = regexp.MustCompile(`<wsse:Nonce[^>]*>([^<]+)</wsse:Nonce>`)
	createdRe = regexp.MustCompile(`<wsu:Created>([^<]+)</wsu:Created>`)
	digestRe  = regexp.MustCompile(`<wsse:Password[^>]*>([^<]+)</wsse:Password>`)
	tokenRe   = regexp.MustCompile(`<trt:ProfileToken>([^<]+)</trt:ProfileToken>`)
)

type fakeCamera struct {
	password  string
	badTokens map[string]bool

	mu    sync.Mutex
	paths []string
}

func (f *fakeCamera) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := string(raw)
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.mu.Unlock()

	if !f.authorized(body) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, soapWrap, `<SOAP-ENV:Fault><SOAP-ENV:Reason><SOAP-ENV:Text>Sender not authorized</SOAP-ENV:Text></SOAP-ENV:Reason></SOAP-ENV:Fault>`)
		return
	}

	switch {
	case strings.Contains(body, "GetDeviceInformation"):
		fmt.Fprintf(w, soapWrap, `<tds:GetDeviceInformationResponse><tds:Manufacturer>Acme</tds:Manufacturer><tds:Model>IPC-1</tds:Model><tds:FirmwareVersion>1.2</tds:FirmwareVersion><tds:SerialNumber>SN9</tds:SerialNumber><tds:HardwareId>HW</tds:HardwareId></tds:GetDeviceInformationResponse>`)
	case strings.Contains(body, "GetCapabilities"):
		fmt.Fprintf(w, soapWrap, `<tds:GetCapabilitiesResponse><tds:Capabilities><tt:Media><tt:XAddr>http://127.0.0.1/onvif/Media</tt:XAddr></tt:Media></tds:Capabilities></tds:GetCapabilitiesResponse>`)
	case strings.Contains(body, "GetProfiles"):
		fmt.Fprintf(w, soapWrap, `<trt:GetProfilesResponse>
<trt:Profiles token="main"><tt:Name>MainStream</tt:Name><tt:VideoEncoderConfiguration><tt:Resolution><tt:Width>1920</tt:Width><tt:Height>1080</tt:Height></tt:Resolution></tt:VideoEncoderConfiguration></trt:Profiles>
<trt:Profiles token="sub"><tt:Name>SubStream</tt:Name></trt:Profiles>
<trt:Profiles token="broken"><tt:Name>Broken</tt:Name></trt:Profiles>
</trt:GetProfilesResponse>`)
	case strings.Contains(body, "GetStreamUri"):
		m := tokenRe.FindStringSubmatch(body)
		if m == nil || f.badTokens[m[1]] {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, soapWrap, `<SOAP-ENV:Fault><SOAP-ENV:Reason><SOAP-ENV:Text>no such profile</SOAP-ENV:Text></SOAP-ENV:Reason></SOAP-ENV:Fault>`)
			return
		}
		fmt.Fprintf(w, soapWrap, `<trt:GetStreamUriResponse><trt:MediaUri><tt:Uri>rtsp://127.0.0.1:554/`+m[1]+`</tt:Uri></trt:MediaUri></trt:GetStreamUriResponse>`)
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeCamera) authorized(body string) bool {
	n, c, d := nonceRe.FindStringSubmatch(body), createdRe.FindStringSubmatch(body), digestRe.FindStringSubmatch(body)
	if n == nil || c == nil || d == nil {
		return false
	}
	nonce, err := base64.StdEncoding.DecodeString(n[1])
	if err != nil {
		return false
	}
	return PasswordDigest(nonce, c[1], f.password) == d[1]
}

func newTestClient(t *testing.T, cam *fakeCamera, password string) *Client {
	t.Helper()
	srv := httptest.NewServer(cam)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return New(Config{Host: host, Port: port, Username: "admin", Password: password})
}

func TestDeviceInformation(t *testing.T) {
	c := newTestClient(t, &fakeCamera{password: "secret"}, "secret")

	info, err := c.DeviceInformation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme", info.Manufacturer)
	assert.Equal(t, "IPC-1", info.Model)
	assert.Equal(t, "HW", info.HardwareID)
}

func TestWrongPasswordReturnsFault(t *testing.T) {
	c := newTestClient(t, &fakeCamera{password: "secret"}, "wrong")

	_, err := c.DeviceInformation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")
}

func TestDiscover(t *testing.T) {
	cam := &fakeCamera{password: "secret", badTokens: map[string]bool{"broken": true}}
	c := newTestClient(t, cam, "secret")

	streams, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, streams, 2)

	assert.Equal(t, "MainStream", streams[0].ProfileName)
	assert.Equal(t, "1920x1080", streams[0].Resolution)
	assert.Equal(t, "rtsp://admin:secret@"+c.cfg.Host+":554/main", streams[0].RTSPURL)
	assert.Equal(t, "Unknown", streams[1].Resolution)

	// GetProfiles foi para o XAddr anunciado em GetCapabilities
	cam.mu.Lock()
	defer cam.mu.Unlock()
	assert.Contains(t, cam.paths, "/onvif/Media")
}

func TestFixURI_KeepsExistingCredentials(t *testing.T) {
	c := New(Config{Host: "10.0.0.9", Username: "admin", Password: "pw"})
	assert.Equal(t, "rtsp://user:x@10.0.0.9/live", c.fixURI("rtsp://user:x@localhost/live"))
	assert.Equal(t, "rtsp://admin:pw@10.0.0.8:8554/live", c.fixURI("rtsp://10.0.0.8:8554/live"))
}

func TestPasswordDigest(t *testing.T) {
	// vetor do perfil UsernameToken da OASIS
	nonce, err := base64.StdEncoding.DecodeString("LKqI6G/AikKCQrN0zqZFlg==")
	require.NoError(t, err)
	assert.Equal(t, "tuOSpGlFlIXsozq4HFNeeGeFLEI=", PasswordDigest(nonce, "2010-09-16T07:50:45Z", "userpassword"))
}
