package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/mamadbah2/chatrelay/internal/config"
)

// Text codes attached to provider error envelopes.
const (
	TextCodeProviderAPI       = "PROVIDER_API_ERROR"
	TextCodeProviderTransport = "PROVIDER_TRANSPORT_ERROR"
)

// Client exposes WhatsApp Cloud API operations used by the application.
// Every call takes the access token of the chatbot it acts for.
type Client interface {
	SendMessage(ctx context.Context, phoneID, token string, body any) (map[string]any, error)
	GetMediaURL(ctx context.Context, mediaID, token string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL, token string) (*MediaDownload, error)
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a WhatsApp API client using the provided configuration values.
func NewClient(cfg config.WhatsAppConfig) *APIClient {
	base := strings.TrimSuffix(cfg.BaseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(fmt.Sprintf("%s/%s", base, cfg.APIVersion)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &APIClient{httpClient: restyClient}
}

// MediaDownload is a streamed media body. Callers must close Body.
type MediaDownload struct {
	Body          io.ReadCloser
	ContentLength int64
	ContentType   string
}

// apiError represents a WhatsApp Cloud API error payload.
type apiError struct {
	Error *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorData    any    `json:"error_data"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type mediaLookup struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// SendMessage posts a prebuilt request body to the phone number's messages
// endpoint and returns the decoded response.
func (c *APIClient) SendMessage(ctx context.Context, phoneID, token string, body any) (map[string]any, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		Post(fmt.Sprintf("%s/messages", url.PathEscape(phoneID)))
	if err != nil {
		return nil, transportError(err, "send whatsapp message", phoneID)
	}

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	payload := map[string]any{}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, transportError(err, "decode whatsapp response", phoneID)
	}

	return payload, nil
}

// GetMediaURL resolves a media id into the short-lived download URL hosted by Meta.
func (c *APIClient) GetMediaURL(ctx context.Context, mediaID, token string) (string, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get(url.PathEscape(mediaID))
	if err != nil {
		return "", transportError(err, "lookup whatsapp media", mediaID)
	}

	if err := checkResponse(resp); err != nil {
		return "", err
	}

	var lookup mediaLookup
	if err := json.Unmarshal(resp.Body(), &lookup); err != nil {
		return "", transportError(err, "decode media lookup", mediaID)
	}
	if lookup.URL == "" {
		return "", goerrors.New("whatsapp api error: media lookup returned no url", goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeProviderAPI).
			WithMetadata(map[string]any{"media_id": mediaID})
	}

	return lookup.URL, nil
}

// DownloadMedia streams the binary behind a media URL.
func (c *APIClient) DownloadMedia(ctx context.Context, mediaURL, token string) (*MediaDownload, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetDoNotParseResponse(true).
		Get(mediaURL)
	if err != nil {
		return nil, transportError(err, "download whatsapp media", mediaURL)
	}

	raw := resp.RawBody()
	if !resp.IsSuccess() {
		defer raw.Close()
		snippet, _ := io.ReadAll(io.LimitReader(raw, 4096))
		return nil, providerError(resp.StatusCode(), resp.Status(), snippet)
	}

	length := int64(-1)
	if resp.RawResponse != nil {
		length = resp.RawResponse.ContentLength
	}

	return &MediaDownload{
		Body:          raw,
		ContentLength: length,
		ContentType:   resp.Header().Get("Content-Type"),
	}, nil
}

// checkResponse treats non-2xx statuses and 2xx bodies carrying an "error"
// object as failures.
func checkResponse(resp *resty.Response) error {
	if !resp.IsSuccess() {
		return providerError(resp.StatusCode(), resp.Status(), resp.Body())
	}

	var apiErr apiError
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error != nil {
		return providerError(resp.StatusCode(), resp.Status(), resp.Body())
	}

	return nil
}

func providerError(statusCode int, status string, body []byte) error {
	metadata := map[string]any{"status_code": statusCode}

	message := http.StatusText(statusCode)
	if strings.TrimSpace(status) != "" {
		message = status
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != nil {
		if apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		if apiErr.Error.Code != 0 {
			metadata["provider_code"] = apiErr.Error.Code
		}
		if apiErr.Error.FBTraceID != "" {
			metadata["fbtrace_id"] = apiErr.Error.FBTraceID
		}
	}

	return goerrors.New(fmt.Sprintf("whatsapp api error: %s", message), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeProviderAPI).
		WithMetadata(metadata)
}

func transportError(err error, operation, subject string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, operation).
		WithCode(http.StatusBadGateway).
		WithTextCode(TextCodeProviderTransport).
		WithMetadata(map[string]any{"subject": subject})
}
