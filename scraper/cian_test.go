package scraper

import (
	"os"
	"path/filepath"
	"testing"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

func TestBuildSearchURL(t *testing.T) {
	cases := []struct {
		city, category, deal string
		page                 int
		want                 string
	}{
		{"spb", "kvartiry", "sale", 1, "https://spb.cian.ru/kupit-kvartiru/"},
		{"spb", "kvartiry", "sale", 3, "https://spb.cian.ru/kupit-kvartiru/?p=3"},
		{"moskva", "komnaty", "rent", 1, "https://www.cian.ru/snyat-komnatu/"},
		{"kazan", "doma", "sale", 2, "https://kazan.cian.ru/kupit-dom/?p=2"},
		// Unknown city falls back to the subdomain pattern.
		{"tula", "kvartiry", "sale", 1, "https://tula.cian.ru/kupit-kvartiru/"},
	}

	for _, c := range cases {
		got := BuildSearchURL(c.city, c.category, c.deal, c.page, nil)
		if got != c.want {
			t.Errorf("BuildSearchURL(%s, %s, %s, %d) = %s, want %s",
				c.city, c.category, c.deal, c.page, got, c.want)
		}
	}
}

func TestBuildSearchURL_Filters(t *testing.T) {
	got := BuildSearchURL("spb", "kvartiry", "sale", 1, map[string]string{"minprice": "5000000"})
	if got != "https://spb.cian.ru/kupit-kvartiru/?minprice=5000000" {
		t.Fatalf("unexpected URL %s", got)
	}
}

func TestNameTables(t *testing.T) {
	if CityName("spb") != "Санкт-Петербург" {
		t.Errorf("CityName(spb) = %s", CityName("spb"))
	}
	if CityName("tula") != "tula" {
		t.Errorf("unknown city should pass through, got %s", CityName("tula"))
	}
	if DealTypeName("sale") != "Продажа" || DealTypeName("rent") != "Аренда" {
		t.Error("deal type names wrong")
	}
	if CategoryName("kvartiry") != "Квартиры" {
		t.Errorf("CategoryName(kvartiry) = %s", CategoryName("kvartiry"))
	}
}

func TestParseSearchPage(t *testing.T) {
	html := loadFixture(t, "cian_search.html")

	listings, err := ParseSearchPage(html, "https://spb.cian.ru")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// The third card has neither price nor area and must be dropped.
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(listings))
	}

	first := listings[0]
	if first.SourceID != 316035283 {
		t.Fatalf("source id = %d", first.SourceID)
	}
	if first.URL != "https://spb.cian.ru/sale/flat/316035283/" {
		t.Errorf("url = %s", first.URL)
	}
	if first.DealType != "Продажа" {
		t.Errorf("deal type = %s", first.DealType)
	}
	if first.Price == nil || *first.Price != 12500000 {
		t.Errorf("price = %v", first.Price)
	}
	if first.Rooms == nil || *first.Rooms != 2 {
		t.Errorf("rooms = %v", first.Rooms)
	}
	if first.AreaTotal == nil || *first.AreaTotal != 77.5 {
		t.Errorf("area = %v", first.AreaTotal)
	}
	if first.Floor == nil || *first.Floor != 4 || first.FloorsTotal == nil || *first.FloorsTotal != 15 {
		t.Errorf("floor = %v/%v", first.Floor, first.FloorsTotal)
	}
	if first.Metro != "Площадь Восстания" {
		t.Errorf("metro = %q", first.Metro)
	}
	if first.MetroTime == nil || *first.MetroTime != 7 {
		t.Errorf("metro time = %v", first.MetroTime)
	}
	if first.MetroTransport != "walk" {
		t.Errorf("metro transport = %q", first.MetroTransport)
	}
	if first.Address != "Санкт-Петербург, Невский пр., 28" {
		t.Errorf("address = %q", first.Address)
	}
	if first.Title != "2-комн. кв., 77.5 м², 4/15 эт." {
		t.Errorf("title = %q", first.Title)
	}

	second := listings[1]
	if second.SourceID != 287654321 {
		t.Fatalf("source id = %d", second.SourceID)
	}
	if second.URL != "https://spb.cian.ru/sale/flat/287654321/" {
		t.Errorf("relative href not resolved: %s", second.URL)
	}
	if second.Rooms == nil || *second.Rooms != 0 {
		t.Errorf("studio rooms = %v, want 0", second.Rooms)
	}
	if second.AreaTotal == nil || *second.AreaTotal != 25 {
		t.Errorf("area = %v", second.AreaTotal)
	}
	if second.Metro != "" {
		t.Errorf("metro = %q, want empty", second.Metro)
	}
	if second.Title != "Студия, 25.0 м², 2/9 эт." {
		t.Errorf("title = %q", second.Title)
	}
}

func TestParseSearchPage_Empty(t *testing.T) {
	listings, err := ParseSearchPage("<html><body>ничего не найдено</body></html>", "https://spb.cian.ru")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
}

func TestIsValidMetroName(t *testing.T) {
	valid := []string{"Площадь Восстания", "Девяткино", "Проспект Большевиков"}
	for _, name := range valid {
		if !isValidMetroName(name) {
			t.Errorf("%q should be a valid metro name", name)
		}
	}

	invalid := []string{"", "до", "пешком", "мин", "ab", "Station Name Without Cyrillic letters"}
	for _, name := range invalid {
		if isValidMetroName(name) {
			t.Errorf("%q should not be a valid metro name", name)
		}
	}
}
