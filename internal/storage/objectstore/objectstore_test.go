package objectstore

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantExt  string
	}{
		{"mp3 файл", "extract.mp3", ".mp3"},
		{"wav файл", "запись студии.wav", ".wav"},
		{"без расширения", "extract", ""},
		{"двойное расширение", "archive.tar.ogg", ".ogg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := GenerateKey(tt.filename)

			if tt.wantExt != "" && !strings.HasSuffix(key, tt.wantExt) {
				t.Errorf("GenerateKey(%q) = %q, ожидался суффикс %q", tt.filename, key, tt.wantExt)
			}
			// Имя клиента не должно попадать в ключ
			if strings.Contains(key, "extract") || strings.Contains(key, "запись") {
				t.Errorf("GenerateKey(%q) = %q содержит исходное имя файла", tt.filename, key)
			}
		})
	}
}

func TestGenerateKeyUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := GenerateKey("a.mp3")
		if seen[key] {
			t.Fatalf("GenerateKey вернул дубликат: %q", key)
		}
		seen[key] = true
	}
}
