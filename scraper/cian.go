package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/i1dus/listing-rater/models"
)

// Domain tables for the cian.ru listing site. Cities map to regional
// subdomains, categories and deal types to the slugs the site builds its
// search paths from.

var cityDomains = map[string]string{
	"spb":              "https://spb.cian.ru",
	"sankt-peterburg":  "https://spb.cian.ru",
	"moskva":           "https://www.cian.ru",
	"ekaterinburg":     "https://ekb.cian.ru",
	"novosibirsk":      "https://nsk.cian.ru",
	"kazan":            "https://kazan.cian.ru",
	"nizhny-novgorod":  "https://nn.cian.ru",
	"chelyabinsk":      "https://chelyabinsk.cian.ru",
	"samara":           "https://samara.cian.ru",
	"rostov-na-donu":   "https://rostov.cian.ru",
	"ufa":              "https://ufa.cian.ru",
}

var dealSlugs = map[string]string{
	"sale": "kupit",
	"rent": "snyat",
}

var categorySlugs = map[string]string{
	"kvartiry":      "kvartiru",
	"komnaty":       "komnatu",
	"doma":          "dom",
	"uchastki":      "uchastok",
	"kommercheskaya": "kommercheskuyu-nedvizhimost",
}

var cityNames = map[string]string{
	"spb":             "Санкт-Петербург",
	"sankt-peterburg": "Санкт-Петербург",
	"moskva":          "Москва",
	"ekaterinburg":    "Екатеринбург",
	"novosibirsk":     "Новосибирск",
	"kazan":           "Казань",
	"nizhny-novgorod": "Нижний Новгород",
	"chelyabinsk":     "Челябинск",
	"samara":          "Самара",
	"rostov-na-donu":  "Ростов-на-Дону",
	"ufa":             "Уфа",
}

var dealTypeNames = map[string]string{
	"sale": "Продажа",
	"rent": "Аренда",
}

var categoryNames = map[string]string{
	"kvartiry":      "Квартиры",
	"komnaty":       "Комнаты",
	"doma":          "Дома",
	"uchastki":      "Участки",
	"kommercheskaya": "Коммерческая недвижимость",
}

// CityName returns the display name of a city slug, the slug itself when
// unknown.
func CityName(slug string) string {
	if name, ok := cityNames[slug]; ok {
		return name
	}
	return slug
}

func DealTypeName(slug string) string {
	if name, ok := dealTypeNames[slug]; ok {
		return name
	}
	return slug
}

func CategoryName(slug string) string {
	if name, ok := categoryNames[slug]; ok {
		return name
	}
	return slug
}

// CityDomain returns the regional subdomain for a city slug.
func CityDomain(city string) string {
	if domain, ok := cityDomains[city]; ok {
		return domain
	}
	return fmt.Sprintf("https://%s.cian.ru", city)
}

// BuildSearchURL assembles a search page URL like
// https://spb.cian.ru/kupit-kvartiru/?p=2 from city/category/deal slugs.
func BuildSearchURL(city, category, dealType string, page int, filters map[string]string) string {
	domain := CityDomain(city)
	deal, ok := dealSlugs[dealType]
	if !ok {
		deal = "kupit"
	}
	cat, ok := categorySlugs[category]
	if !ok {
		cat = "kvartiru"
	}

	url := fmt.Sprintf("%s/%s-%s/", domain, deal, cat)

	var params []string
	if page > 1 {
		params = append(params, fmt.Sprintf("p=%d", page))
	}
	for k, v := range filters {
		params = append(params, k+"="+v)
	}
	if len(params) > 0 {
		return url + "?" + strings.Join(params, "&")
	}
	return url
}

var (
	listingHrefRe = regexp.MustCompile(`/(sale|rent)/flat/(\d+)/`)
	priceRe       = regexp.MustCompile(`(\d[\d\s]*\d)\s*₽`)
	roomsRe       = regexp.MustCompile(`(\d+)-комн`)
	areaRe        = regexp.MustCompile(`(\d+\.?\d*)\s*м²`)
	floorRe       = regexp.MustCompile(`(\d+)/(\d+)\s*этаж`)
	descRe        = regexp.MustCompile(`\d+-комн[^·]*·[^·]*м²[^·]*·[^·]*этаж`)
	metroNameRe   = regexp.MustCompile(`([А-ЯЁ][А-Яа-яЁё\s\-]+)`)
	metroTimeRe   = regexp.MustCompile(`(\d+)\s*мин`)
	digitsRe      = regexp.MustCompile(`^\d`)
)

var invalidMetroWords = map[string]bool{
	"минут": true, "минуты": true, "минута": true, "мин": true,
	"рядом": true, "до": true, "от": true, "пешком": true, "на": true,
	"транспорт": true, "автобус": true, "метро": true, "станция": true,
	"станции": true, "и": true, "или": true, "к": true,
}

func isValidMetroName(name string) bool {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 3 || len([]rune(name)) > 30 {
		return false
	}
	lower := strings.ToLower(name)
	if invalidMetroWords[lower] {
		return false
	}
	for word := range invalidMetroWords {
		if strings.HasPrefix(lower, word+" ") || strings.HasPrefix(lower, word+",") {
			return false
		}
	}
	hasCyrillic := false
	for _, r := range name {
		if (r >= 'а' && r <= 'я') || (r >= 'А' && r <= 'Я') || r == 'ё' || r == 'Ё' {
			hasCyrillic = true
			break
		}
	}
	return hasCyrillic
}

// ParseSearchPage extracts raw listings from a search results page. Cards
// are located by their detail-page links, deduplicated by external id, and
// parsed from the card's visible text. A card without at least a price or an
// area is dropped.
func ParseSearchPage(html, baseDomain string) ([]models.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[int64]bool)
	var listings []models.RawListing

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		m := listingHrefRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		sourceID, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil || seen[sourceID] {
			return
		}
		seen[sourceID] = true

		card := findCard(link)
		raw := extractCard(card, sourceID, href, m[1], baseDomain)
		if raw != nil {
			listings = append(listings, *raw)
		}
	})

	return listings, nil
}

// findCard climbs from a listing link to the enclosing card container.
func findCard(link *goquery.Selection) *goquery.Selection {
	card := link
	for i := 0; i < 10; i++ {
		parent := card.Parent()
		if parent.Length() == 0 {
			break
		}
		class, _ := parent.Attr("class")
		lower := strings.ToLower(class)
		if strings.Contains(lower, "container") || strings.Contains(lower, "card") {
			return parent
		}
		card = parent
	}
	return card
}

func extractCard(card *goquery.Selection, sourceID int64, href, dealSlug, baseDomain string) *models.RawListing {
	raw := &models.RawListing{
		SourceID: sourceID,
		DealType: DealTypeName(dealSlug),
	}
	if strings.HasPrefix(href, "http") {
		raw.URL = href
	} else {
		raw.URL = baseDomain + href
	}

	cardText := strings.ReplaceAll(normalizeSpace(card.Text()), " ", " ")

	// A dedicated price element first: matching over the whole card text can
	// glue a preceding house number onto the price.
	priceText := ""
	card.Find("span,div,p").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		class, _ := el.Attr("class")
		if strings.Contains(strings.ToLower(class), "price") && strings.Contains(el.Text(), "₽") {
			priceText = strings.ReplaceAll(normalizeSpace(el.Text()), " ", " ")
			return false
		}
		return true
	})
	if priceText == "" {
		priceText = cardText
	}
	if m := priceRe.FindStringSubmatch(priceText); m != nil {
		priceStr := strings.NewReplacer(" ", "", " ", "").Replace(m[1])
		if price, err := strconv.ParseInt(priceStr, 10, 64); err == nil {
			raw.Price = &price
		}
	}

	// The link holding "2-комн. кв. · 77,50 м² · 4/15 этаж" carries rooms,
	// area and floors in one string.
	descText := ""
	card.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		text := normalizeSpace(link.Text())
		if strings.Contains(text, "комн") || strings.Contains(text, "м²") || strings.Contains(text, "этаж") {
			descText = text
			return false
		}
		return true
	})
	if descText == "" {
		descText = descRe.FindString(cardText)
	}

	if descText != "" {
		dotted := strings.ReplaceAll(descText, ",", ".")
		if m := roomsRe.FindStringSubmatch(descText); m != nil {
			if rooms, err := strconv.Atoi(m[1]); err == nil {
				raw.Rooms = &rooms
			}
		} else if strings.Contains(strings.ToLower(descText), "студия") {
			studio := 0
			raw.Rooms = &studio
		}

		if m := areaRe.FindStringSubmatch(dotted); m != nil {
			if area, err := strconv.ParseFloat(m[1], 64); err == nil && area >= 10 && area <= 500 {
				raw.AreaTotal = &area
			}
		}

		if m := floorRe.FindStringSubmatch(descText); m != nil {
			floor, err1 := strconv.Atoi(m[1])
			total, err2 := strconv.Atoi(m[2])
			if err1 == nil && err2 == nil {
				raw.Floor = &floor
				raw.FloorsTotal = &total
			}
		}
	}

	extractMetro(card, cardText, raw)

	// Address lives in a span whose class mentions "address".
	card.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		class, _ := span.Attr("class")
		if !strings.Contains(strings.ToLower(class), "address") {
			return true
		}
		addr := normalizeSpace(span.Text())
		if addr != "" && len([]rune(addr)) < 200 && !strings.HasPrefix(addr, "Квартиры") {
			raw.Address = addr
			return false
		}
		return true
	})

	raw.Title = generateTitle(raw)

	// Needs at least a price or an area to be worth saving.
	if raw.Price == nil && raw.AreaTotal == nil {
		return nil
	}
	return raw
}

func extractMetro(card *goquery.Selection, cardText string, raw *models.RawListing) {
	metroElem := card.Find(`[data-name="Underground"]`).First()
	if metroElem.Length() > 0 {
		metroText := normalizeSpace(metroElem.Text())

		metroElem.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
			text := strings.TrimSpace(span.Text())
			if text == "" || len([]rune(text)) >= 50 || digitsRe.MatchString(text) {
				return true
			}
			if isValidMetroName(text) {
				raw.Metro = text
				return false
			}
			return true
		})
		if raw.Metro == "" {
			if m := metroNameRe.FindStringSubmatch(metroText); m != nil {
				name := strings.TrimSpace(metroTimeRe.ReplaceAllString(m[1], ""))
				if isValidMetroName(name) {
					raw.Metro = name
				}
			}
		}

		timeElem := metroElem.Find(`[data-name="GeoTravelTime"]`).First()
		timeText := metroText
		if timeElem.Length() > 0 {
			timeText = normalizeSpace(timeElem.Text())
		}
		if m := metroTimeRe.FindStringSubmatch(timeText); m != nil {
			if minutes, err := strconv.Atoi(m[1]); err == nil {
				raw.MetroTime = &minutes
			}
		}

		htmlStr, _ := goquery.OuterHtml(metroElem)
		lowerText := strings.ToLower(metroText)
		if strings.Contains(htmlStr, "walk") || strings.Contains(lowerText, "пешком") {
			raw.MetroTransport = "walk"
		} else if strings.Contains(htmlStr, "transport") || strings.Contains(htmlStr, "bus") ||
			strings.Contains(lowerText, "автобус") {
			raw.MetroTransport = "transport"
		}
		return
	}

	// Fallback: spot "метро Название" or "Название N мин" in the card text.
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`метро\s+([А-ЯЁ][А-Яа-яЁё\s\-]+)`),
		regexp.MustCompile(`([А-ЯЁ][А-Яа-яЁё]{3,20})\s+\d+\s*мин`),
	}
	for _, re := range patterns {
		m := re.FindStringSubmatchIndex(cardText)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(cardText[m[2]:m[3]])
		if !isValidMetroName(name) {
			continue
		}
		raw.Metro = name
		tail := cardText[m[1]:]
		if len(tail) > 50 {
			tail = tail[:50]
		}
		if tm := metroTimeRe.FindStringSubmatch(tail); tm != nil {
			if minutes, err := strconv.Atoi(tm[1]); err == nil {
				raw.MetroTime = &minutes
			}
		}
		return
	}
}

// generateTitle builds a short display title from whatever the card yielded.
func generateTitle(raw *models.RawListing) string {
	var parts []string
	if raw.Rooms != nil {
		if *raw.Rooms == 0 {
			parts = append(parts, "Студия")
		} else {
			parts = append(parts, fmt.Sprintf("%d-комн. кв.", *raw.Rooms))
		}
	}
	if raw.AreaTotal != nil {
		parts = append(parts, fmt.Sprintf("%.1f м²", *raw.AreaTotal))
	}
	if raw.Floor != nil && raw.FloorsTotal != nil {
		parts = append(parts, fmt.Sprintf("%d/%d эт.", *raw.Floor, *raw.FloorsTotal))
	} else if raw.Floor != nil {
		parts = append(parts, fmt.Sprintf("%d эт.", *raw.Floor))
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("Квартира %d", raw.SourceID)
}

var spaceRe = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
