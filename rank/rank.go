// Package rank maps a trophy total onto the community rank tiers.
package rank

import "math"

// Tier is one rank level
type Tier struct {
	Name string `json:"name"`
	Min  int    `json:"min"`
	// Next is the total needed for the following tier, 0 for the top tier
	Next   int    `json:"next"`
	Emblem string `json:"emblem"`
}

// Tiers lists every rank in ascending order.
// There is no tier starting at 900: totals from 900 up to 999 stay on
// "Käse Füß Sigma" with full progress.
var Tiers = []Tier{
	{Name: "Unrankt", Min: 0, Next: 100, Emblem: "unrankt.png"},
	{Name: "Front Flipper", Min: 100, Next: 200, Emblem: "front-flipper.png"},
	{Name: "Flicker Massen Beta", Min: 200, Next: 300, Emblem: "flicker-massen-beta.png"},
	{Name: "Haram-Schlachter", Min: 300, Next: 400, Emblem: "haram-schlachter.png"},
	{Name: "Pockai Knose", Min: 400, Next: 500, Emblem: "pockai-knose.png"},
	{Name: "Fnaf/Tuf", Min: 500, Next: 600, Emblem: "fnaf-tuf.png"},
	{Name: "Schwertmensch", Min: 600, Next: 700, Emblem: "schwertmensch.png"},
	{Name: "Bake Flips Flippa", Min: 700, Next: 800, Emblem: "bake-flips-flippa.png"},
	{Name: "Käse Füß Sigma", Min: 800, Next: 900, Emblem: "kaese-fuss-sigma.png"},
	{Name: "Ultimate Durchhähmer", Min: 1000, Next: 1200, Emblem: "ultimate-durchhaehmer.png"},
	{Name: "Creeper/Stripper", Min: 1200, Next: 1400, Emblem: "creeper-stripper.png"},
	{Name: "Psychiatrie C1", Min: 1400, Next: 1450, Emblem: "psychiatrie-c1.png"},
	{Name: "Psychiatrie C2", Min: 1450, Next: 1500, Emblem: "psychiatrie-c2.png"},
	{Name: "Psychiatrie C3", Min: 1500, Next: 1550, Emblem: "psychiatrie-c3.png"},
	{Name: "Psychiatrie C4", Min: 1550, Next: 1600, Emblem: "psychiatrie-c4.png"},
	{Name: "Halal-Schlachter", Min: 1600, Next: 0, Emblem: "halal-schlachter.png"},
}

const (
	emblemDir     = "./fotos/"
	defaultEmblem = "unrankt.png"
)

// Info is the rank of a trophy total
type Info struct {
	Total int    `json:"total"`
	Name  string `json:"name"`
	// Next is the total of the next tier, 0 at the top tier
	Next int `json:"next"`
	// Progress is the percentage towards Next, clamped to [0, 100]
	Progress float64 `json:"progress"`
	// Remaining is the number of trophies missing until Next
	Remaining int    `json:"remaining"`
	Emblem    string `json:"emblem"`
}

// Max reports whether the top tier has been reached
func (i Info) Max() bool {
	return i.Next == 0
}

// Compute returns the rank for total
func Compute(total int) Info {
	current := Tiers[0]
	for _, t := range Tiers {
		if total < t.Min {
			break
		}
		current = t
	}

	info := Info{
		Total:    total,
		Name:     current.Name,
		Next:     current.Next,
		Progress: 100,
		Emblem:   emblemDir + current.Emblem,
	}
	if current.Next != 0 {
		p := float64(total-current.Min) / float64(current.Next-current.Min) * 100
		info.Progress = math.Max(0, math.Min(100, p))
		if r := current.Next - total; r > 0 {
			info.Remaining = r
		}
	}

	return info
}

// Emblem returns the emblem image path for a rank name
func Emblem(name string) string {
	for _, t := range Tiers {
		if t.Name == name {
			return emblemDir + t.Emblem
		}
	}
	return emblemDir + defaultEmblem
}
