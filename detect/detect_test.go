package detect

import (
	"testing"
)

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string // "" means not found
	}{
		{"brazilian layout", "Buy Widget now R$ 99,90", "99.9"},
		{"brazilian with thousands", "só hoje R$ 1.299,00 à vista", "1299"},
		{"dot decimals", "Widget R$ 100.00", "100"},
		{"integer price", "Widget R$100", "100"},
		{"no space after marker", "R$49,90 frete grátis", "49.9"},
		{"first price wins", "de R$ 200,00 por R$ 150,00", "200"},
		{"no marker", "Widget for 99,90", ""},
		{"marker without amount", "preço em R$ a combinar", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPrice(tt.text)
			if tt.want == "" {
				if ok {
					t.Fatalf("ExtractPrice(%q) = %s, want no price", tt.text, got)
				}
				return
			}
			if !ok {
				t.Fatalf("ExtractPrice(%q) found nothing, want %s", tt.text, tt.want)
			}
			if got.String() != tt.want {
				t.Fatalf("ExtractPrice(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsMultiItemPost(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"no prices", "Widget promo, confira!", false},
		{"one price", "Widget R$ 10,00", false},
		{"two prices", "Widget R$ 10,00 and Gadget R$ 20,00", true},
		{"three prices", "A R$1 B R$2 C R$3", true},
		{"price without decimals counts", "kit R$ 100 e capa R$ 50", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMultiItemPost(tt.text); got != tt.want {
				t.Fatalf("IsMultiItemPost(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountPrices(t *testing.T) {
	if got := CountPrices("de R$ 200,00 por R$ 150,00"); got != 2 {
		t.Fatalf("CountPrices = %d, want 2", got)
	}
	if got := CountPrices("sem preço aqui"); got != 0 {
		t.Fatalf("CountPrices = %d, want 0", got)
	}
}

func TestContainsProduct(t *testing.T) {
	tests := []struct {
		text string
		name string
		want bool
	}{
		{"Buy Widget now", "Widget", true},
		{"buy widget now", "Widget", true}, // case-insensitive
		{"the Echo Dot 5 arrived", "Echo Dot", true},
		{"EchoDots everywhere", "Echo Dot", false}, // whole word only
		{"Widgets on sale", "Widget", false},
		{"50% off (today)", "(today)", false}, // metacharacters are literal, not regex
	}
	for _, tt := range tests {
		if got := ContainsProduct(tt.text, tt.name); got != tt.want {
			t.Errorf("ContainsProduct(%q, %q) = %v, want %v", tt.text, tt.name, got, tt.want)
		}
	}
}
