package models

// RawListing is the attribute dictionary supplied by a listing source for one
// discovered advertisement. Absent fields are nil, meaning unknown — never
// zero.
type RawListing struct {
	SourceID int64  `json:"source_id"`
	URL      string `json:"url"`

	Title       string `json:"title"`
	Description string `json:"description"`
	DealType    string `json:"deal_type"`

	Price *int64 `json:"price"`

	City     string `json:"city"`
	District string `json:"district"`
	Address  string `json:"address"`

	Metro          string `json:"metro"`
	MetroTime      *int   `json:"metro_time"`
	MetroTransport string `json:"metro_transport"`

	PropertyType string   `json:"property_type"`
	Rooms        *int     `json:"rooms"`
	Floor        *int     `json:"floor"`
	FloorsTotal  *int     `json:"floors_total"`
	AreaTotal    *float64 `json:"area_total"`
	AreaLiving   *float64 `json:"area_living"`
	AreaKitchen  *float64 `json:"area_kitchen"`

	Images []string `json:"images"`
}
