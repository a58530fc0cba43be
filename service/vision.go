package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/model"
	"github.com/Hussein135-coder/souriana-extract-bot/pkg/logger"
)

// ContentGenerator is the seam to the vision model. image may be nil for
// text-only probe calls.
type ContentGenerator interface {
	Generate(ctx context.Context, prompt string, image []byte, imageFormat string) (string, error)
}

// VisionService turns a receipt photo into a structured record.
type VisionService struct {
	defaults  config.DefaultValues
	generator ContentGenerator

	// Retry schedule for failed model calls. Exposed so tests can tighten it.
	MaxRetries  int
	BaseDelay   time.Duration
	CallTimeout time.Duration
}

// NewVisionService creates the Gemini-backed extractor.
func NewVisionService(ctx context.Context, cfg *config.GeminiConfig, defaults config.DefaultValues) (*VisionService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	gmodel := client.GenerativeModel(cfg.Model)
	gmodel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
	}

	return NewVisionServiceWithGenerator(&geminiGenerator{model: gmodel}, defaults), nil
}

// NewVisionServiceWithGenerator wires an explicit generator; used by tests.
func NewVisionServiceWithGenerator(gen ContentGenerator, defaults config.DefaultValues) *VisionService {
	return &VisionService{
		defaults:    defaults,
		generator:   gen,
		MaxRetries:  3,
		BaseDelay:   time.Second,
		CallTimeout: 60 * time.Second,
	}
}

type geminiGenerator struct {
	model *genai.GenerativeModel
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string, image []byte, imageFormat string) (string, error) {
	parts := []genai.Part{genai.Text(prompt)}
	if image != nil {
		parts = append(parts, genai.ImageData(imageFormat, image))
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String(), nil
}

// Extract analyzes the image and returns the structured record plus the
// names of any fields that failed post-hoc validation and were reset to
// their defaults. Failed model calls are retried with exponential backoff;
// once retries are exhausted the configured defaults are returned so the
// confirmation UI always has something to show. A nil record means the
// model answered but the payload was unparseable.
func (s *VisionService) Extract(ctx context.Context, image []byte, mimeType string) (model.Record, []string) {
	prompt := buildExtractionPrompt(s.defaults)
	format := imageFormat(mimeType)

	for attempt := 1; attempt <= s.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
		raw, err := s.generator.Generate(callCtx, prompt, image, format)
		cancel()

		if err != nil {
			logger.Warn(ctx, "image analysis failed",
				"attempt", attempt,
				"max_retries", s.MaxRetries,
				"error", err,
			)
			if attempt < s.MaxRetries {
				delay := s.BaseDelay << (attempt - 1)
				logger.Info(ctx, "retrying image analysis", "delay", delay)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return model.FromDefaults(s.defaults), nil
				}
			}
			continue
		}

		rec := model.ParseExtraction(raw)
		if rec == nil {
			logger.Error(ctx, "failed to parse extraction response", "response", raw)
			return nil, nil
		}

		rec.ApplyDefaults(s.defaults)
		corrected := rec.Normalize(s.defaults)
		if len(corrected) > 0 {
			logger.Warn(ctx, "extraction violated business rules", "corrected_fields", corrected)
		}
		return rec, corrected
	}

	logger.Warn(ctx, "all analysis attempts failed, returning default values")
	return model.FromDefaults(s.defaults), nil
}

// CheckAPIKey performs a minimal text-only call to verify the configured
// key actually works. A failure here is a warning, not fatal: extraction
// will fall back to defaults.
func (s *VisionService) CheckAPIKey(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, s.CallTimeout)
	defer cancel()

	if _, err := s.generator.Generate(callCtx, "hello", nil, ""); err != nil {
		return fmt.Errorf("gemini api key check failed: %w", err)
	}
	return nil
}

func imageFormat(mimeType string) string {
	if f := strings.TrimPrefix(mimeType, "image/"); f != "" && f != mimeType {
		return f
	}
	return "jpeg"
}

func buildExtractionPrompt(d config.DefaultValues) string {
	return fmt.Sprintf(`
قم بتحليل الصورة واستخراج البيانات التالية بدقة:
{
  "name": "اسم المرسل (نص)",
  "number": "المبلغ (رقم int بدون فواصل)",
  "date": "التاريخ (تنسيق ISO 8601)",
  "company" : "اسم الشركة هو الهرم أو الفؤاد حصراو ابحث عن هذين الاسمين وان لم تجد ايا منهما اكتب الهرم",
    "status": "ضع القيمة صفر دائما",
    "user": "ضع القيمة %s دائما "

}

القيم الافتراضية:
{
     "name": "%s",
     "number": "%s",
     "company": "%s",
     "date": "%s",
     "status": "%s",
     "user": "%s"
 }

التعليمات:
1. تجاهل أي بيانات غير ذات صلة
2. إذا لم يوجد حقل، استخدم قيمة من القيم الافتراضية
3. تأكد من أن المبلغ رقم صالح
4. التاريخ يجب أن يكون بتنسيق YYYY-MM-DD
5. لا تضيف أي شرح إضافي
6. عندما تكون الحوالة من الفؤاد قم باستخراج المبلغ الصافي مع تجاهل الاصفار الزائدة
7. عندما تكون الحوالة من الهرم يكون هناك مبلغ على اليمين وهو المبلغ الاساسي ثم علامة سلاش ثم مبلغ صغير على اليسار بجانبه كلمة مرسل هو العمولة فقم بتجاهل العمولة
8. ليس هناك اي مبلغ اقل من %d
`, d.User, d.Name, d.Number, d.Company, d.Date, d.Status, d.User, model.MinAmount)
}
