package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sizepanic/sizepanic/internal/bundle"
	"github.com/sizepanic/sizepanic/internal/npm"
)

// Download-time estimates shown alongside sizes, in kilobytes per second.
const (
	slow3GKBps = 50
	fast4GKBps = 1430
)

// BundleHandler serves the analyze endpoints.
type BundleHandler struct {
	service    *bundle.Service
	batchLimit int
}

// NewBundleHandler creates a handler around the bundle service.
func NewBundleHandler(service *bundle.Service, batchLimit int) *BundleHandler {
	return &BundleHandler{service: service, batchLimit: batchLimit}
}

type analyzeRequest struct {
	PackageName    string `json:"packageName"`
	PackageVersion string `json:"packageVersion"`
	Subpath        string `json:"subpath"`
}

type batchRequest struct {
	Packages []analyzeRequest `json:"packages"`
}

type downloadTime struct {
	Slow3G int64 `json:"slow3G"` // milliseconds
	Fast4G int64 `json:"fast4G"`
}

type analyzeResponse struct {
	bundle.BundleResponse
	DownloadTime *downloadTime `json:"downloadTime,omitempty"`
}

// HandleAnalyze analyzes a single package.
func (h *BundleHandler) HandleAnalyze(c *fiber.Ctx) error {
	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.PackageName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "packageName is required")
	}
	if _, err := npm.ResolveVersion(req.PackageVersion); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	resp := h.service.Analyze(c.Context(), bundle.AnalyzeInput{
		PackageName:    req.PackageName,
		PackageVersion: req.PackageVersion,
		Subpath:        req.Subpath,
	})

	return c.Status(statusForResponse(resp)).JSON(decorate(resp))
}

// HandleAnalyzeBatch analyzes up to batchLimit packages in one call.
// Per-item failures are isolated: the batch always returns one response
// per input, in order, with HTTP 200.
func (h *BundleHandler) HandleAnalyzeBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Packages) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "packages must not be empty")
	}
	if len(req.Packages) > h.batchLimit {
		return fiber.NewError(fiber.StatusBadRequest, "too many packages in one batch")
	}

	inputs := make([]bundle.AnalyzeInput, len(req.Packages))
	for i, pkg := range req.Packages {
		if pkg.PackageName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "packageName is required for every entry")
		}
		inputs[i] = bundle.AnalyzeInput{
			PackageName:    pkg.PackageName,
			PackageVersion: pkg.PackageVersion,
			Subpath:        pkg.Subpath,
		}
	}

	responses := h.service.AnalyzeBatch(c.Context(), inputs)

	decorated := make([]analyzeResponse, len(responses))
	for i, resp := range responses {
		decorated[i] = decorate(resp)
	}
	return c.JSON(decorated)
}

// decorate adds download-time estimates to successful responses.
func decorate(resp bundle.BundleResponse) analyzeResponse {
	out := analyzeResponse{BundleResponse: resp}
	if resp.Success && resp.Sizes != nil {
		out.DownloadTime = &downloadTime{
			Slow3G: transferMillis(resp.Sizes.Gzip, slow3GKBps),
			Fast4G: transferMillis(resp.Sizes.Gzip, fast4GKBps),
		}
	}
	return out
}

func transferMillis(bytes int64, kbps int64) int64 {
	return bytes * 1000 / 1024 / kbps
}

// statusForResponse maps the stable error codes onto HTTP statuses.
func statusForResponse(resp bundle.BundleResponse) int {
	if resp.Success {
		return fiber.StatusOK
	}
	if resp.Error == nil {
		return fiber.StatusInternalServerError
	}

	// Admission rejections are "try again later", not package failures, so
	// upstream rate limiting can react to them specifically.
	if strings.HasPrefix(resp.Error.Message, "Server is busy") {
		return fiber.StatusServiceUnavailable
	}

	switch resp.Error.Code {
	case bundle.CodeFetchFailed:
		return fiber.StatusNotFound
	case bundle.CodeInstallFailed:
		return fiber.StatusBadRequest
	case bundle.CodeSizeLimitExceeded:
		return fiber.StatusRequestEntityTooLarge
	case bundle.CodeUnsupported, bundle.CodeNodeBuiltins, bundle.CodeNoEntryPoint:
		return fiber.StatusUnprocessableEntity
	case bundle.CodeTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
