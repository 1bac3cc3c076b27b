// =============================================================================
// notion.go - Notionデータベースへのクリップ
// =============================================================================
//
// 受理したインシデントを1件1ページとしてNotionデータベースに保存します。
//
// 【必要な環境変数】
//
//	NOTION_TOKEN       - Notion Integration Token
//	NOTION_PAGE_ID     - 新規DBを作成する親ページ（DB未作成時のみ）
//	NOTION_DATABASE_ID - 既存DB
//
// 【データベースのプロパティ】
//
//	Title(タイトル) / URL / ID / Date / Country / Relevance / Category /
//	Substance / Quantity / Keywords(マルチセレクト) / Location /
//	Source / Duplicate Of / Score
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
)

// Notion の rich_text 1要素あたりの上限
const notionTextLimit = 2000

// NotionClipper はインシデントをNotionに保存する
type NotionClipper struct {
	client *notionapi.Client
	dbID   notionapi.DatabaseID
	logger *zap.Logger
}

// NewNotionClipper は NotionClipper を作成する
//
// databaseID が空の場合は CreateDatabase で作成してから使う。
func NewNotionClipper(token, databaseID string, logger *zap.Logger) (*NotionClipper, error) {
	if token == "" {
		return nil, fmt.Errorf("NOTION_TOKEN is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotionClipper{
		client: notionapi.NewClient(notionapi.Token(token)),
		dbID:   notionapi.DatabaseID(databaseID),
		logger: logger,
	}, nil
}

// DatabaseID は使用中のデータベースIDを返す
func (nc *NotionClipper) DatabaseID() string { return string(nc.dbID) }

// CreateDatabase は親ページの下にインシデント用データベースを作成する
func (nc *NotionClipper) CreateDatabase(ctx context.Context, pageID string) error {
	if pageID == "" {
		return fmt.Errorf("NOTION_PAGE_ID is required to create a new database")
	}

	relevanceOptions := []notionapi.Option{
		{Name: string(RelevanceHigh), Color: notionapi.ColorRed},
		{Name: string(RelevanceMedium), Color: notionapi.ColorYellow},
		{Name: string(RelevanceLow), Color: notionapi.ColorGray},
	}

	db, err := nc.client.Database.Create(ctx, &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(pageID),
		},
		Title: []notionapi.RichText{
			{Text: &notionapi.Text{Content: "Narco Relay Incidents"}},
		},
		Properties: notionapi.PropertyConfigs{
			"Title":        notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			"URL":          notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL},
			"ID":           notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Date":         notionapi.DatePropertyConfig{Type: notionapi.PropertyConfigTypeDate},
			"Country":      notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect},
			"Relevance":    notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: relevanceOptions}},
			"Category":     notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect},
			"Substance":    notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Quantity":     notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Keywords":     notionapi.MultiSelectPropertyConfig{Type: notionapi.PropertyConfigTypeMultiSelect},
			"Location":     notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Source":       notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Description":  notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Duplicate Of": notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			"Score": notionapi.NumberPropertyConfig{
				Type:   notionapi.PropertyConfigTypeNumber,
				Number: notionapi.NumberFormat{Format: notionapi.FormatNumber},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create Notion database: %w", err)
	}

	nc.dbID = notionapi.DatabaseID(db.ID)
	nc.logger.Info("notion database created",
		zap.String("database_id", string(db.ID)),
		zap.String("url", "https://notion.so/"+strings.ReplaceAll(string(db.ID), "-", "")))
	return nil
}

// ClipIncident はインシデント1件をページとして保存する
func (nc *NotionClipper) ClipIncident(ctx context.Context, inc Incident) error {
	if nc.dbID == "" {
		return fmt.Errorf("database ID not set")
	}
	_, err := nc.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: nc.dbID,
		},
		Properties: incidentProperties(inc),
	})
	if err != nil {
		return fmt.Errorf("failed to clip incident %s: %w", inc.ID, err)
	}
	return nil
}

// ClipAll はインシデントを順に保存し、成功件数を返す
//
// 1件の失敗では止めずに警告ログを出して続行する。ctx がキャンセルされたら中断。
func (nc *NotionClipper) ClipAll(ctx context.Context, incidents []Incident) (int, error) {
	clipped := 0
	for _, inc := range incidents {
		if err := ctx.Err(); err != nil {
			return clipped, err
		}
		if err := nc.ClipIncident(ctx, inc); err != nil {
			nc.logger.Warn("notion clip failed", zap.String("id", inc.ID), zap.Error(err))
			continue
		}
		clipped++
	}
	return clipped, nil
}

// incidentProperties はインシデントをNotionのプロパティに変換する
//
// 空の値は送らない（Notionは空のselectを受け付けない）。
func incidentProperties(inc Incident) notionapi.Properties {
	props := notionapi.Properties{
		"Title": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(inc.Title),
		},
		"ID": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(inc.ID),
		},
		"Relevance": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: string(inc.Relevance)},
		},
		"Quantity": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(FormatQuantity(inc.Quantity, inc.Unit)),
		},
	}
	if inc.URL != "" {
		props["URL"] = notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: inc.URL}
	}
	if d, ok := ParseIncidentDate(inc.PublicationDate); ok {
		start := notionapi.Date(d)
		props["Date"] = notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &start},
		}
	}

	selects := map[string]string{
		"Country":  inc.OriginCountry,
		"Category": inc.SubstanceCategory,
	}
	for name, v := range selects {
		if v != "" && v != Unspecified {
			props[name] = notionapi.SelectProperty{
				Type:   notionapi.PropertyTypeSelect,
				Select: notionapi.Option{Name: notionOptionName(v)},
			}
		}
	}

	texts := map[string]string{
		"Substance":    inc.SubstanceType,
		"Location":     Place{Country: inc.Location.Country, Province: inc.Location.Province, District: inc.Location.District}.String(),
		"Source":       inc.SourceDomain,
		"Description":  inc.Description,
		"Duplicate Of": inc.DuplicateOf,
	}
	for name, v := range texts {
		if v != "" {
			props[name] = notionapi.RichTextProperty{
				Type:     notionapi.PropertyTypeRichText,
				RichText: richText(v),
			}
		}
	}

	if len(inc.Keywords) > 0 {
		opts := make([]notionapi.Option, 0, len(inc.Keywords))
		for _, kw := range inc.Keywords {
			opts = append(opts, notionapi.Option{Name: notionOptionName(kw)})
		}
		props["Keywords"] = notionapi.MultiSelectProperty{
			Type:        notionapi.PropertyTypeMultiSelect,
			MultiSelect: opts,
		}
	}
	if inc.IsDuplicate() {
		props["Score"] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: inc.SimilarityScore,
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{Text: &notionapi.Text{Content: truncateString(s, notionTextLimit)}},
	}
}

// notionOptionName は select の選択肢名に使えない文字（カンマ）を置き換える
func notionOptionName(s string) string {
	return truncateString(strings.ReplaceAll(s, ",", " "), 100)
}
