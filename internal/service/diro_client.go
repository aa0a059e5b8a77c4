package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"doc-verifier/internal/models"
	"doc-verifier/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DiroClient implements Extractor and Committer against the DIRO
// smartFeedback and smartUpload endpoints.
type DiroClient struct {
	config     *config.DiroConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewDiroClient(cfg *config.DiroConfig, httpClient *http.Client, logger *zap.Logger) *DiroClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &DiroClient{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

type warnCases struct {
	TrackID1 string `json:"trackid1"`
	TrackID2 string `json:"trackid2"`
}

// ExtractDocument uploads the file for field extraction. An empty or null
// response body means the result is not ready and yields a nil result.
func (c *DiroClient) ExtractDocument(ctx context.Context, file models.FileRef, content []byte) (*models.ExtractionResult, error) {
	if c.config.APIURL == "" {
		return nil, fmt.Errorf("DIRO api url is not configured")
	}

	body, contentType, err := c.buildExtractBody(file, content)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.setHeaders(req)

	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Info("Submitting document to DIRO",
		zap.String("request_id", requestID),
		zap.String("file", file.Name),
		zap.String("mime_type", file.MimeType),
		zap.Int64("size", file.Size),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload document: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("%w: %s", ErrUnprocessable, bodySnippet(respBody))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("DIRO upload failed (%d %s): %s", resp.StatusCode, http.StatusText(resp.StatusCode), bodySnippet(respBody))
	}

	trimmed := bytes.TrimSpace(respBody)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		c.logger.Info("DIRO returned no payload yet", zap.String("request_id", requestID))
		return nil, nil
	}

	var result models.ExtractionResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, fmt.Errorf("failed to decode DIRO response: %w", err)
	}

	c.logger.Info("DIRO extraction completed",
		zap.String("request_id", requestID),
		zap.String("docid", result.DocID),
		zap.String("document_type", result.DocumentType),
		zap.Bool("unprocessable", result.IsUnprocessable()),
	)

	return &result, nil
}

func (c *DiroClient) buildExtractBody(file models.FileRef, content []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("buttonid", c.config.DefaultButtonID); err != nil {
		return nil, "", fmt.Errorf("failed to write buttonid field: %w", err)
	}

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = detectMimeType(file.Name)
	}
	part, err := writer.CreatePart(map[string][]string{
		"Content-Type":        {mimeType},
		"Content-Disposition": {fmt.Sprintf(`form-data; name="pdffile"; filename="%s"`, escapeQuotes(file.Name))},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("failed to copy file: %w", err)
	}

	cases, err := json.Marshal(warnCases{TrackID1: c.config.WarnTrackID1, TrackID2: c.config.WarnTrackID2})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode warn cases: %w", err)
	}
	if err := writer.WriteField("warn_cases", string(cases)); err != nil {
		return nil, "", fmt.Errorf("failed to write warn_cases field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}

type smartUploadResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// CommitDocument finalizes a previously extracted document.
func (c *DiroClient) CommitDocument(ctx context.Context, documentID string) (*models.CommitResult, error) {
	if c.config.SmartUploadURL == "" {
		return nil, fmt.Errorf("DIRO smart upload url is not configured")
	}

	payload, err := json.Marshal(map[string]string{"docid": documentID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.SmartUploadURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to submit document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("DIRO smartUpload failed (%d %s): %s", resp.StatusCode, http.StatusText(resp.StatusCode), bodySnippet(bodyBytes))
	}

	var uploadResp smartUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return nil, fmt.Errorf("failed to decode DIRO response: %w", err)
	}

	c.logger.Info("DIRO smartUpload completed",
		zap.String("docid", documentID),
		zap.Bool("error", uploadResp.Error),
		zap.String("message", uploadResp.Message),
	)

	return &models.CommitResult{OK: !uploadResp.Error, Message: uploadResp.Message}, nil
}

func (c *DiroClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// escapeQuotes matches mime/multipart's escaping of form-data parameters.
func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func detectMimeType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		return mimeType
	}
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return "application/octet-stream"
}
