package workers

import "testing"

func TestGuessExtension(t *testing.T) {
	cases := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://cdn.example.com/photo.jpg", "", ".jpg"},
		{"https://cdn.example.com/photo.PNG", "", ".png"},
		{"https://cdn.example.com/photo.webp?size=big", "", ".webp"},
		{"https://cdn.example.com/photo", "image/png", ".png"},
		{"https://cdn.example.com/photo", "image/webp", ".webp"},
		{"https://cdn.example.com/photo", "", ".jpg"},
		{"https://cdn.example.com/photo.bin", "application/octet-stream", ".jpg"},
	}

	for _, c := range cases {
		if got := guessExtension(c.url, c.contentType); got != c.want {
			t.Errorf("guessExtension(%s, %s) = %s, want %s", c.url, c.contentType, got, c.want)
		}
	}
}
