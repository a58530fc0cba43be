package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/model"
	"github.com/Hussein135-coder/souriana-extract-bot/pkg/logger"
	"github.com/Hussein135-coder/souriana-extract-bot/service"
)

// TelegramClient is the subset of the Telegram API the handlers use.
// *tgbotapi.BotAPI satisfies it; tests substitute a recorder.
type TelegramClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Callback payloads carried by the inline keyboards
const (
	cbApprove         = "approve"
	cbEdit            = "edit"
	cbCancel          = "cancel"
	cbEditPrefix      = "edit_"
	cbRetryLogin      = "retry_login"
	cbSaveLocal       = "save_local"
	cbRetryConnection = "retry_connection"
)

// Handler drives the confirm-or-edit conversation for every chat.
type Handler struct {
	client     TelegramClient
	cfg        *config.Config
	vision     *service.VisionService
	website    *service.WebsiteService
	backup     *service.BackupService
	store      *service.ConversationStore
	httpClient *http.Client
}

func NewHandler(client TelegramClient, cfg *config.Config, vision *service.VisionService, website *service.WebsiteService, backup *service.BackupService, store *service.ConversationStore) *Handler {
	return &Handler{
		client:     client,
		cfg:        cfg,
		vision:     vision,
		website:    website,
		backup:     backup,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// HandleUpdate dispatches one Telegram update. Panics are recovered here so
// a single bad event can never take the process down.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = context.WithValue(ctx, logger.UpdateIDKey, update.UpdateID)

	var chatID int64
	switch {
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		chatID = update.CallbackQuery.Message.Chat.ID
	case update.Message != nil:
		chatID = update.Message.Chat.ID
	default:
		return
	}
	ctx = context.WithValue(ctx, logger.ChatIDKey, chatID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "panic in update handler",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			h.send(tgbotapi.NewMessage(chatID, "حدث خطأ غير متوقع. يرجى المحاولة مرة أخرى."))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && len(update.Message.Photo) > 0:
		h.handlePhoto(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		h.handleText(ctx, update.Message)
	}
}

// handlePhoto runs the intake path: download the best photo variant,
// extract a record, and ask for confirmation. The processing message is
// edited in place as the stages advance.
func (h *Handler) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	processing, err := h.send(tgbotapi.NewMessage(chatID, "جاري معالجة الصورة..."))
	if err != nil {
		logger.Error(ctx, "failed to send processing message", "error", err)
		return
	}

	// Variants are ordered smallest first
	photo := msg.Photo[len(msg.Photo)-1]

	h.edit(chatID, processing.MessageID, "جاري تحميل الصورة...")
	image, mimeType, err := h.downloadPhoto(ctx, photo.FileID)
	if err != nil {
		logger.Error(ctx, "failed to download photo", "error", err)
		h.edit(chatID, processing.MessageID, "حدث خطأ أثناء معالجة الصورة. يرجى المحاولة مرة أخرى.")
		return
	}

	h.edit(chatID, processing.MessageID, "جاري تحليل الصورة باستخدام الذكاء الاصطناعي...")
	record, corrected := h.vision.Extract(ctx, image, mimeType)
	if record == nil {
		h.edit(chatID, processing.MessageID, "فشل استخراج البيانات من الصورة. يرجى المحاولة مرة أخرى.")
		h.store.Clear(chatID)
		return
	}

	logger.Info(ctx, "record extracted", "record", record)
	h.store.SetPending(chatID, record)

	h.delete(chatID, processing.MessageID)
	h.requestConfirmation(ctx, chatID, record, corrected)
}

// requestConfirmation renders the record with the Approve/Edit/Cancel
// keyboard and remembers the message id for later edits.
func (h *Handler) requestConfirmation(ctx context.Context, chatID int64, record model.Record, corrected []string) {
	pretty, err := record.PrettyJSON()
	if err != nil {
		logger.Error(ctx, "failed to render record", "error", err)
		return
	}

	text := fmt.Sprintf("Please confirm the extracted data:\n\n%s", pretty)
	if len(corrected) > 0 {
		text += fmt.Sprintf("\n\n⚠️ تم تصحيح الحقول التالية إلى القيم الافتراضية: %v", corrected)
	}

	confirm := tgbotapi.NewMessage(chatID, text)
	confirm.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve ✅", cbApprove),
			tgbotapi.NewInlineKeyboardButtonData("Edit ✏️", cbEdit),
			tgbotapi.NewInlineKeyboardButtonData("Cancel ❌", cbCancel),
		),
	)

	sent, err := h.send(confirm)
	if err != nil {
		logger.Error(ctx, "failed to send confirmation", "error", err)
		return
	}
	h.store.SetConfirmMessageID(chatID, sent.MessageID)
}

func (h *Handler) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	// An in-flight edit consumes exactly one text message.
	if field, ok := h.store.TakeAwaitingEdit(chatID); ok {
		if h.store.UpdateField(chatID, field, msg.Text) {
			logger.Info(ctx, "field edited", "field", field)
			record := h.store.Pending(chatID)
			h.requestConfirmation(ctx, chatID, record, nil)
		}
		return
	}

	switch msg.Text {
	case "/start":
		h.send(tgbotapi.NewMessage(chatID, "أهلاً بك! قم بإرسال صورة لاستخراج البيانات منها."))
	case "/help":
		help := tgbotapi.NewMessage(chatID,
			"🤖 *مساعدة بوت استخراج البيانات* 🤖\n\n"+
				"الأوامر المتاحة:\n"+
				"/start - بدء استخدام البوت\n"+
				"/status - عرض حالة الاتصال بالموقع\n"+
				"/help - عرض هذه المساعدة\n\n"+
				"لاستخراج البيانات، ما عليك سوى إرسال صورة وسيقوم البوت بتحليلها واستخراج البيانات منها.")
		help.ParseMode = tgbotapi.ModeMarkdown
		h.send(help)
	case "/status":
		h.sendStatus(ctx, chatID)
	}
}

func (h *Handler) sendStatus(ctx context.Context, chatID int64) {
	var statusLine string
	switch h.website.Status() {
	case service.LoginSuccess:
		statusLine = "✅ متصل\nتم تسجيل الدخول إلى الموقع بنجاح."
	case service.LoginFailed:
		statusLine = "❌ غير متصل\nفشل تسجيل الدخول إلى الموقع."
	case service.LoginRetrying:
		statusLine = "🔄 جاري المحاولة\nجاري محاولة الاتصال بالموقع..."
	default:
		statusLine = "⚪ غير معروفة\nلم تتم محاولة الاتصال بالموقع بعد."
	}

	statusLine += fmt.Sprintf(
		"\n\nإعدادات الموقع:\nعنوان تسجيل الدخول: %s\nعنوان إرسال البيانات: %s\nاسم المستخدم: %s",
		configuredMark(h.cfg.Website.LoginURL),
		configuredMark(h.cfg.Website.DataURL),
		configuredMark(h.cfg.Website.Username),
	)

	status := tgbotapi.NewMessage(chatID, "حالة الاتصال بالموقع:\n"+statusLine)
	status.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("إعادة محاولة الاتصال 🔄", cbRetryConnection),
		),
	)
	h.send(status)
}

func configuredMark(value string) string {
	if value != "" {
		return "✓"
	}
	return "✗"
}

func (h *Handler) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	data := query.Data

	// Stop the button spinner regardless of the outcome
	h.client.Request(tgbotapi.NewCallback(query.ID, ""))

	switch {
	case data == cbApprove:
		h.handleApprove(ctx, chatID, messageID)
	case data == cbCancel:
		h.handleCancel(ctx, chatID, messageID)
	case data == cbEdit:
		h.handleEditMenu(ctx, chatID, messageID)
	case strings.HasPrefix(data, cbEditPrefix):
		h.handleEditField(ctx, chatID, messageID, strings.TrimPrefix(data, cbEditPrefix))
	case data == cbRetryLogin:
		h.handleRetryLogin(ctx, chatID)
	case data == cbSaveLocal:
		h.handleSaveLocal(ctx, chatID)
	case data == cbRetryConnection:
		h.handleRetryConnection(ctx, chatID)
	}
}

func (h *Handler) handleApprove(ctx context.Context, chatID int64, confirmMessageID int) {
	record := h.store.Pending(chatID)
	if record == nil {
		h.send(tgbotapi.NewMessage(chatID, "لا توجد بيانات معلقة. قم بإرسال صورة أولاً."))
		return
	}

	processing, err := h.send(tgbotapi.NewMessage(chatID, "جاري إرسال البيانات..."))
	if err != nil {
		logger.Error(ctx, "failed to send processing message", "error", err)
		return
	}

	result, err := h.website.Submit(ctx, record)
	if err != nil {
		logger.Warn(ctx, "submission failed", "error", err)
		h.showLoginFailure(ctx, chatID, processing.MessageID)
		return
	}

	logger.Info(ctx, "record submitted", "response", result)
	h.edit(chatID, processing.MessageID, "تم إرسال البيانات بنجاح! ✅")
	h.delete(chatID, confirmMessageID)
	h.store.Clear(chatID)
}

func (h *Handler) handleCancel(ctx context.Context, chatID int64, messageID int) {
	h.delete(chatID, messageID)
	h.store.Clear(chatID)
	h.send(tgbotapi.NewMessage(chatID, "تم إلغاء العملية."))
}

func (h *Handler) handleEditMenu(ctx context.Context, chatID int64, messageID int) {
	record := h.store.Pending(chatID)
	if record == nil {
		h.send(tgbotapi.NewMessage(chatID, "لا توجد بيانات معلقة. قم بإرسال صورة أولاً."))
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, field := range record.FieldNames() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(field, cbEditPrefix+field),
		))
	}

	h.delete(chatID, messageID)
	menu := tgbotapi.NewMessage(chatID, "اختر الحقل الذي تريد تعديله:")
	menu.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	h.send(menu)
}

func (h *Handler) handleEditField(ctx context.Context, chatID int64, messageID int, field string) {
	h.delete(chatID, messageID)
	h.store.SetAwaitingEdit(chatID, field)
	h.send(tgbotapi.NewMessage(chatID, fmt.Sprintf("أدخل قيمة جديدة لـ %s:", field)))
}

func (h *Handler) handleRetryLogin(ctx context.Context, chatID int64) {
	processing, err := h.send(tgbotapi.NewMessage(chatID, "جاري إعادة محاولة تسجيل الدخول..."))
	if err != nil {
		logger.Error(ctx, "failed to send processing message", "error", err)
		return
	}

	if _, err := h.website.Login(ctx, true); err != nil {
		logger.Warn(ctx, "forced login failed", "error", err)
		h.showLoginFailure(ctx, chatID, processing.MessageID)
		return
	}

	h.edit(chatID, processing.MessageID, "تم تسجيل الدخول بنجاح. جاري إرسال البيانات...")

	record := h.store.Pending(chatID)
	if record == nil {
		h.edit(chatID, processing.MessageID, "تم تسجيل الدخول بنجاح، لكن لا توجد بيانات معلقة.")
		return
	}

	if _, err := h.website.Submit(ctx, record); err != nil {
		logger.Warn(ctx, "submission failed after re-login", "error", err)
		h.edit(chatID, processing.MessageID, "فشل إرسال البيانات رغم نجاح تسجيل الدخول. ⚠️")
		return
	}

	h.edit(chatID, processing.MessageID, "تم إرسال البيانات بنجاح! ✅")
	h.delete(chatID, h.store.ConfirmMessageID(chatID))
	h.store.Clear(chatID)
}

func (h *Handler) handleSaveLocal(ctx context.Context, chatID int64) {
	record := h.store.Pending(chatID)
	if record == nil {
		h.send(tgbotapi.NewMessage(chatID, "لا توجد بيانات معلقة. قم بإرسال صورة أولاً."))
		return
	}

	processing, err := h.send(tgbotapi.NewMessage(chatID, "جاري حفظ البيانات محلياً..."))
	if err != nil {
		logger.Error(ctx, "failed to send processing message", "error", err)
		return
	}

	filePath, err := h.backup.Save(ctx, record)
	if err != nil {
		logger.Error(ctx, "local save failed", "error", err)
		h.edit(chatID, processing.MessageID, "حدث خطأ أثناء حفظ البيانات محلياً!")
		return
	}

	h.edit(chatID, processing.MessageID, fmt.Sprintf("تم حفظ البيانات محلياً بنجاح! ✅\nالمسار: %s", filePath))

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	doc.Caption = "ملف البيانات المستخرجة"
	if _, err := h.send(doc); err != nil {
		logger.Error(ctx, "failed to send backup document", "error", err)
	}

	h.delete(chatID, h.store.ConfirmMessageID(chatID))
	h.store.Clear(chatID)
}

func (h *Handler) handleRetryConnection(ctx context.Context, chatID int64) {
	processing, err := h.send(tgbotapi.NewMessage(chatID, "جاري إعادة محاولة الاتصال بالموقع..."))
	if err != nil {
		logger.Error(ctx, "failed to send processing message", "error", err)
		return
	}

	if _, err := h.website.Login(ctx, true); err != nil {
		h.edit(chatID, processing.MessageID, "❌ فشل الاتصال بالموقع. يرجى التحقق من إعدادات الاتصال.")
		return
	}
	h.edit(chatID, processing.MessageID, "✅ تم الاتصال بالموقع بنجاح!")
}

// showLoginFailure replaces the given message with the recoverable-failure
// prompt: retry the login, save the record locally, or give up.
func (h *Handler) showLoginFailure(ctx context.Context, chatID int64, messageID int) {
	text := "⚠️ فشل الاتصال بالموقع ⚠️\n\n" +
		"لم نتمكن من تسجيل الدخول إلى الموقع بعد عدة محاولات.\n" +
		"يرجى اختيار أحد الخيارات التالية:"

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("إعادة محاولة تسجيل الدخول 🔄", cbRetryLogin),
			tgbotapi.NewInlineKeyboardButtonData("حفظ البيانات محلياً 💾", cbSaveLocal),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("إلغاء ❌", cbCancel),
		),
	)

	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, keyboard)
	if _, err := h.client.Send(edit); err != nil {
		logger.Error(ctx, "failed to show login failure prompt", "error", err)
	}
}

// downloadPhoto fetches the photo bytes from Telegram's file servers.
func (h *Handler) downloadPhoto(ctx context.Context, fileID string) ([]byte, string, error) {
	url, err := h.client.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("photo download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read photo: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return data, mimeType, nil
}

func (h *Handler) send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return h.client.Send(c)
}

func (h *Handler) edit(chatID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	if _, err := h.client.Send(tgbotapi.NewEditMessageText(chatID, messageID, text)); err != nil {
		logger.Error(context.Background(), "failed to edit message", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) delete(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := h.client.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		logger.Error(context.Background(), "failed to delete message", "chat_id", chatID, "error", err)
	}
}
