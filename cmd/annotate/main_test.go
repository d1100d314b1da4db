package main

import (
	"testing"

	"github.com/menta2k/photo-annotator/pkg/types"
)

func TestOutputFormat(t *testing.T) {
	tests := []struct {
		in, ext, want string
	}{
		{"photo.jpg", "", "jpg"},
		{"photo.WEBP", "", "webp"},
		{"photo.gif", "", "png"},
		{"photo", "", "png"},
		{"photo.jpg", "WebP", "webp"},
		{"https://cdn.test/p.jpg?w=100", "", "png"},
	}
	for _, tt := range tests {
		if got := outputFormat(tt.in, tt.ext); got != tt.want {
			t.Errorf("outputFormat(%q, %q) = %q, want %q", tt.in, tt.ext, got, tt.want)
		}
	}
}

func TestRelabel(t *testing.T) {
	annotations := []types.Annotation{
		{Kind: types.TagCatalog, Product: &types.ProductRef{ID: types.StringID("3"), Label: "3"}},
		{Kind: types.TagCatalog, Product: &types.ProductRef{ID: types.IntID(9), Label: "9"}},
		{Kind: types.TagText, ProductName: "Lamp"},
	}
	relabel(annotations, []types.ProductRef{{ID: types.IntID(3), Label: "Gel Polish"}})

	if annotations[0].Product.Label != "Gel Polish" {
		t.Errorf("Expected catalog name, got %q", annotations[0].Product.Label)
	}
	if annotations[0].Product.ID != types.StringID("3") {
		t.Errorf("Relabel should keep the record's id, got %v", annotations[0].Product.ID)
	}
	if annotations[1].Product.Label != "9" {
		t.Errorf("Unknown ids keep their label, got %q", annotations[1].Product.Label)
	}
	if annotations[2].ProductName != "Lamp" {
		t.Error("Free-text annotations are left alone")
	}
}
