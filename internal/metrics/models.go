package metrics

// DailySummary is one row of a tenant's per-day rollup table, written by
// the ingestion pipeline. Dates are business-calendar "YYYY-MM-DD" strings.
type DailySummary struct {
	Date                string  `gorm:"primaryKey;column:date"`
	GrossSales          float64 `gorm:"not null;default:0"`
	TotalDiscountAmount float64 `gorm:"not null;default:0"`
	TotalSales          float64 `gorm:"not null;default:0"`
	NetSales            float64 `gorm:"not null;default:0"`
	TotalOrders         int64   `gorm:"not null;default:0"`
	CodOrders           int64   `gorm:"not null;default:0"`
	PrepaidOrders       int64   `gorm:"not null;default:0"`
	PartiallyPaidOrders int64   `gorm:"not null;default:0"`
	TotalSessions       int64   `gorm:"not null;default:0"`
	TotalAtcSessions    int64   `gorm:"not null;default:0"`
}

func (DailySummary) TableName() string {
	return "overall_summary"
}

// HourlySales is one row of the per-hour rollup, keyed by (date, hour).
// Hour-aligned comparisons aggregate this table up to the target hour.
type HourlySales struct {
	Date                  string  `gorm:"primaryKey;column:date"`
	Hour                  int     `gorm:"primaryKey;column:hour"`
	NumberOfOrders        int64   `gorm:"not null;default:0"`
	TotalSales            float64 `gorm:"not null;default:0"`
	NumberOfPrepaidOrders int64   `gorm:"not null;default:0"`
	NumberOfCodOrders     int64   `gorm:"not null;default:0"`
	NumberOfSessions      int64   `gorm:"not null;default:0"`
	NumberOfAtcSessions   int64   `gorm:"not null;default:0"`
}

func (HourlySales) TableName() string {
	return "hour_wise_sales"
}
