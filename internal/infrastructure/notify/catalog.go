package notify

import (
	"context"
	"fmt"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key identifies a localised message
type Key string

// Message keys
const (
	MsgCreated          Key = "created"
	MsgUpdated          Key = "updated"
	MsgDeleted          Key = "deleted"
	MsgStatusChanged    Key = "status_changed"
	MsgActionFailed     Key = "action_failed"
	MsgTransferCreated  Key = "transfer_created"
	MsgTransferApproved Key = "transfer_approved"
	MsgTransferRejected Key = "transfer_rejected"
	MsgItemsApproved    Key = "items_approved"
	MsgItemsRejected    Key = "items_rejected"
	MsgEmptySelection   Key = "empty_selection"
	MsgNotPending       Key = "not_pending"

	ActionCreate   Key = "action.create"
	ActionUpdate   Key = "action.update"
	ActionDelete   Key = "action.delete"
	ActionStatus   Key = "action.status"
	ActionApprove  Key = "action.approve"
	ActionReject   Key = "action.reject"
	ActionTransfer Key = "action.transfer"

	StatusPending           Key = "status.pending"
	StatusApproved          Key = "status.approved"
	StatusRejected          Key = "status.rejected"
	StatusPartiallyPending  Key = "status.partially_pending"
	StatusPartiallyApproved Key = "status.partially_approved"
)

var translations = map[Key][2]string{ // {ar, en}
	MsgCreated:          {"تمت إضافة %s بنجاح", "%s created successfully"},
	MsgUpdated:          {"تم تحديث %s بنجاح", "%s updated successfully"},
	MsgDeleted:          {"تم حذف %s بنجاح", "%s deleted successfully"},
	MsgStatusChanged:    {"تم تحديث حالة %s بنجاح", "%s status updated successfully"},
	MsgActionFailed:     {"فشلت عملية %s على %s", "Failed to %s %s"},
	MsgTransferCreated:  {"تم إنشاء طلب النقل بنجاح", "Transfer request created successfully"},
	MsgTransferApproved: {"تمت الموافقة على طلب النقل", "Transfer request approved"},
	MsgTransferRejected: {"تم رفض طلب النقل", "Transfer request rejected"},
	MsgEmptySelection:   {"اختر عنصراً واحداً على الأقل", "Choose at least one item"},
	MsgNotPending:       {"لا يمكن اتخاذ قرار على طلب نقل بحالة %s", "Cannot decide a transfer that is %s"},

	ActionCreate:   {"الإضافة", "create"},
	ActionUpdate:   {"التحديث", "update"},
	ActionDelete:   {"الحذف", "delete"},
	ActionStatus:   {"تغيير الحالة", "change the status of"},
	ActionApprove:  {"الموافقة", "approve"},
	ActionReject:   {"الرفض", "reject"},
	ActionTransfer: {"النقل", "transfer"},

	StatusPending:           {"قيد الانتظار", "pending"},
	StatusApproved:          {"موافق عليه", "approved"},
	StatusRejected:          {"مرفوض", "rejected"},
	StatusPartiallyPending:  {"معلق جزئياً", "partially pending"},
	StatusPartiallyApproved: {"موافق عليه جزئياً", "partially approved"},
}

// Supported languages; the first one is the fallback
var (
	Arabic  = language.Arabic
	English = language.English
)

// Catalog localises notification messages to Arabic and English
type Catalog struct {
	builder   *catalog.Builder
	matcher   language.Matcher
	supported []language.Tag
}

// NewCatalog builds the message catalog. defaultLang is used when a request
// asks for no language or an unsupported one.
func NewCatalog(defaultLang string) (*Catalog, error) {
	supported := []language.Tag{Arabic, English}
	if defaultLang == "en" {
		supported = []language.Tag{English, Arabic}
	}

	b := catalog.NewBuilder(catalog.Fallback(supported[0]))
	for key, t := range translations {
		if err := b.SetString(Arabic, string(key), t[0]); err != nil {
			return nil, fmt.Errorf("adding %s (ar): %w", key, err)
		}
		if err := b.SetString(English, string(key), t[1]); err != nil {
			return nil, fmt.Errorf("adding %s (en): %w", key, err)
		}
	}

	counts := []struct {
		key Key
		ar  []any
		en  []any
	}{
		{
			key: MsgItemsApproved,
			ar:  []any{"=1", "تمت الموافقة على قطعة واحدة", "=2", "تمت الموافقة على قطعتين", "other", "تمت الموافقة على %[1]d قطع"},
			en:  []any{"=1", "Approved 1 item", "other", "Approved %[1]d items"},
		},
		{
			key: MsgItemsRejected,
			ar:  []any{"=1", "تم رفض قطعة واحدة", "=2", "تم رفض قطعتين", "other", "تم رفض %[1]d قطع"},
			en:  []any{"=1", "Rejected 1 item", "other", "Rejected %[1]d items"},
		},
	}
	for _, c := range counts {
		if err := b.Set(Arabic, string(c.key), plural.Selectf(1, "%d", c.ar...)); err != nil {
			return nil, fmt.Errorf("adding %s (ar): %w", c.key, err)
		}
		if err := b.Set(English, string(c.key), plural.Selectf(1, "%d", c.en...)); err != nil {
			return nil, fmt.Errorf("adding %s (en): %w", c.key, err)
		}
	}

	return &Catalog{
		builder:   b,
		matcher:   language.NewMatcher(supported),
		supported: supported,
	}, nil
}

// Match resolves an Accept-Language value or a bare language code to one of
// the supported languages
func (c *Catalog) Match(accept string) language.Tag {
	if accept == "" {
		return c.supported[0]
	}
	_, index := language.MatchStrings(c.matcher, accept)
	return c.supported[index]
}

// Printer returns a printer for the given language
func (c *Catalog) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(c.builder))
}

// Sprintf formats a message in the language stored in ctx
func (c *Catalog) Sprintf(ctx context.Context, key Key, args ...any) string {
	return c.Printer(c.Match(LanguageFrom(ctx))).Sprintf(string(key), args...)
}

// Text returns an argument-free message, typically an action name
func (c *Catalog) Text(ctx context.Context, key Key) string {
	return c.Sprintf(ctx, key)
}

// StatusLabel localises a transfer status. Unknown statuses are returned as is.
func (c *Catalog) StatusLabel(ctx context.Context, status string) string {
	key := Key("status." + status)
	if _, ok := translations[key]; !ok {
		return status
	}
	return c.Text(ctx, key)
}

type languageKey struct{}

// WithLanguage stores the caller's preferred language
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey{}, lang)
}

// LanguageFrom returns the language stored by WithLanguage
func LanguageFrom(ctx context.Context) string {
	lang, _ := ctx.Value(languageKey{}).(string)
	return lang
}

// IsEnglish reports whether ctx asks for English messages
func (c *Catalog) IsEnglish(ctx context.Context) bool {
	base, _ := c.Match(LanguageFrom(ctx)).Base()
	return base.String() == "en"
}
