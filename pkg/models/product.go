package models

// Product is the catalog view the recommender reads. Counters are
// maintained by the catalog owner.
type Product struct {
	ID            string   `json:"id" db:"id"`
	TenantID      string   `json:"tenant_id" db:"tenant_id"`
	Name          string   `json:"name" db:"name"`
	Price         float64  `json:"price" db:"price"`
	CategoryID    string   `json:"category_id,omitempty" db:"category_id"`
	CategoryName  string   `json:"category_name,omitempty" db:"category_name"`
	Tags          []string `json:"tags,omitempty" db:"tags"`
	Seasons       []string `json:"seasons,omitempty" db:"seasons"`
	ImageURL      string   `json:"image_url,omitempty" db:"image_url"`
	Rating        float64  `json:"rating" db:"rating"`
	PurchaseCount int64    `json:"purchase_count" db:"purchase_count"`
	ViewCount     int64    `json:"view_count" db:"view_count"`
	Active        bool     `json:"active" db:"active"`
}
