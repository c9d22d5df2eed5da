package models

import (
	"strings"
	"time"
)

// CatalogItem is a canonical manufacturer product.
type CatalogItem struct {
	ID                  int64    `json:"id" db:"id"`
	Article             string   `json:"article" db:"article"`
	EAN13               string   `json:"ean_13" db:"ean_13"`
	Name                string   `json:"name" db:"name"`
	Cost                *float64 `json:"cost,omitempty" db:"cost"`
	MinRecommendedPrice *float64 `json:"min_recommended_price,omitempty" db:"min_recommended_price"`
	RecommendedPrice    *float64 `json:"recommended_price,omitempty" db:"recommended_price"`
	CategoryID          *string  `json:"category_id,omitempty" db:"category_id"`
	OzonName            *string  `json:"ozon_name,omitempty" db:"ozon_name"`
	Name1C              *string  `json:"name_1c,omitempty" db:"name_1c"`
	WBName              *string  `json:"wb_name,omitempty" db:"wb_name"`
	OzonArticle         *string  `json:"ozon_article,omitempty" db:"ozon_article"`
	WBArticle           *string  `json:"wb_article,omitempty" db:"wb_article"`
	YMArticle           *string  `json:"ym_article,omitempty" db:"ym_article"`
}

// Eligible reports whether the item takes part in training and inference.
func (c CatalogItem) Eligible() bool {
	return strings.TrimSpace(c.Name) != ""
}

type Dealer struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// DealerListing is a scraped dealer product entry.
type DealerListing struct {
	ID          int64     `json:"id" db:"id"`
	ProductKey  string    `json:"product_key" db:"product_key"`
	Price       float64   `json:"price" db:"price"`
	ProductURL  *string   `json:"product_url,omitempty" db:"product_url"`
	ProductName string    `json:"product_name" db:"product_name"`
	Date        time.Time `json:"date" db:"date"`
	DealerID    int64     `json:"dealer_id" db:"dealer_id"`
}

// TrainingLink is a verified dealer key to catalog item association.
type TrainingLink struct {
	Key       string `json:"key" db:"key"`
	ProductID int64  `json:"product_id" db:"product_id"`
	DealerID  int64  `json:"dealer_id" db:"dealer_id"`
}

// LinkedListing is a training row: a listing name paired with the catalog item it is known to be.
type LinkedListing struct {
	ListingID   int64  `db:"listing_id"`
	ProductName string `db:"product_name"`
	ProductID   int64  `db:"product_id"`
}
