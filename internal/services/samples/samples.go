package samples

import (
	"math/rand/v2"
)

const BaseURL = "http://images.cocodataset.org/test2017/"

// Filenames is the fixed allow-list of COCO test2017 images offered by the
// "random coco image" button.
var Filenames = []string{
	"000000000057.jpg",
	"000000000063.jpg",
	"000000000069.jpg",
	"000000000080.jpg",
	"000000000090.jpg",
	"000000000106.jpg",
	"000000000108.jpg",
	"000000000128.jpg",
	"000000000155.jpg",
	"000000000161.jpg",
	"000000000171.jpg",
	"000000000178.jpg",
	"000000000180.jpg",
	"000000000183.jpg",
	"000000000188.jpg",
	"000000000191.jpg",
	"000000000202.jpg",
	"000000000205.jpg",
	"000000000212.jpg",
	"000000000229.jpg",
	"000000000251.jpg",
	"000000000275.jpg",
	"000000000276.jpg",
	"000000000311.jpg",
	"000000000318.jpg",
	"000000000345.jpg",
	"000000000408.jpg",
}

// Picker chooses sample images uniformly at random.
type Picker struct {
	intN func(n int) int
}

func NewPicker() *Picker {
	return &Picker{intN: rand.IntN}
}

// NewPickerWithSource is used by tests that need a deterministic sequence.
func NewPickerWithSource(src rand.Source) *Picker {
	r := rand.New(src)
	return &Picker{intN: r.IntN}
}

// Pick returns a filename from Filenames and its external URL.
func (p *Picker) Pick() (string, string) {
	name := Filenames[p.intN(len(Filenames))]
	return name, URL(name)
}

func URL(name string) string {
	return BaseURL + name
}
