package constants

// Header candidates for locating columns in uploaded workbooks. Matching is
// case-insensitive and whitespace-trimmed; uploads come from several
// marketplaces that never agreed on header naming.
var (
	ArticleColumns  = []string{"артикул"}
	StickerColumns  = []string{"№ стикера", "номер стикера", "стикер", "номер"}
	OrderColumns    = []string{"№ заказа", "номер заказа", "заказ"}
	QuantityColumns = []string{"кол-во", "количество", "кол"}
)

// ReportHeaders is the fixed column order of a generated picking report.
// The same candidate lists above must keep resolving these headers so a
// report can round-trip into order submission.
var ReportHeaders = []string{"№ Стикера", "Количество", "Артикул", "Ячейки склада", "Название"}

// StickerPlaceholder marks rows where no sticker number could be resolved.
const StickerPlaceholder = "*"
