package server

import (
	"errors"
	"strings"

	"github.com/FrenchMajesty/turbo-retry/imagegen"
	"github.com/FrenchMajesty/turbo-retry/rate_limit"
	"github.com/FrenchMajesty/turbo-retry/reporting"
	"github.com/FrenchMajesty/turbo-retry/upload"
	"github.com/FrenchMajesty/turbo-retry/utils/retry"
	"github.com/gofiber/fiber/v2"
)

const defaultListLimit = 50

type generateRequest struct {
	imagegen.Request
	Variants int `json:"variants,omitempty"`
}

type generateResponse struct {
	Images []*imagegen.Image `json:"images"`
	Errors []string          `json:"errors,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleGenerate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := c.UserContext()
	if req.Variants > 1 {
		images, err := s.deps.Images.GenerateVariants(ctx, req.Request, req.Variants)
		if len(images) == 0 && err != nil {
			return generateError(err)
		}
		resp := generateResponse{Images: images}
		if err != nil {
			resp.Errors = strings.Split(err.Error(), "\n")
		}
		return c.JSON(resp)
	}

	image, err := s.deps.Images.Generate(ctx, req.Request)
	if err != nil {
		return generateError(err)
	}
	return c.JSON(generateResponse{Images: []*imagegen.Image{image}})
}

// generateError maps a generation failure to an HTTP status
func generateError(err error) error {
	var reqErr *imagegen.RequestError
	switch {
	case errors.Is(err, imagegen.ErrEmptyPrompt),
		errors.Is(err, imagegen.ErrUnsupportedSize),
		errors.Is(err, imagegen.ErrPromptTooLong),
		errors.Is(err, rate_limit.ErrExceedsLimit):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, retry.ErrCancelled):
		return fiber.NewError(fiber.StatusConflict, "request superseded by a newer request")
	// exhaustion wraps the last attempt's error, which may itself be a *RequestError
	case errors.Is(err, retry.ErrRetryExhausted):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.As(err, &reqErr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	s.deps.Images.Cancel()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	if s.deps.Uploader == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "uploads are disabled")
	}

	header, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}

	file := upload.FileInfo{
		Name:        header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get(fiber.HeaderContentType),
	}
	if err := upload.Validate(file, s.deps.Uploader.Policy()); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	body, err := header.Open()
	if err != nil {
		return err
	}
	defer body.Close()

	result, err := s.deps.Uploader.Upload(c.UserContext(), file, body)
	if err != nil {
		if errors.Is(err, retry.ErrRetryExhausted) {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

func (s *Server) handleRetryState(c *fiber.Ctx) error {
	return c.JSON(s.deps.Images.State())
}

func (s *Server) handleRetryEvents(c *fiber.Ctx) error {
	return c.JSON(s.deps.Events.Recent(c.QueryInt("limit", defaultListLimit)))
}

func (s *Server) handleIngestError(c *fiber.Ctx) error {
	var report reporting.Report
	if err := c.BodyParser(&report); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid report body")
	}
	if strings.TrimSpace(report.Message) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}

	reportContext := report.Context
	if report.Source != "" {
		reportContext = report.Source + ": " + reportContext
	}
	s.deps.Ingest.Report(c.UserContext(), errors.New(report.Message), reportContext)
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleListErrors(c *fiber.Ctx) error {
	if s.deps.Reports == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "error storage is disabled")
	}

	reports, err := s.deps.Reports.Recent(c.UserContext(), int64(c.QueryInt("limit", defaultListLimit)))
	if err != nil {
		return err
	}
	return c.JSON(reports)
}

// handleError writes every error as JSON, logging the unexpected ones
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}
	if code >= fiber.StatusInternalServerError && code != fiber.StatusBadGateway {
		s.logger.Printf("%s %s failed: %v", c.Method(), c.Path(), err)
	}

	message := err.Error()
	if fiberErr != nil {
		message = fiberErr.Message
	}
	return c.Status(code).JSON(errorResponse{Error: message})
}
