package hairtype

// Unavailable is the text used by the placeholder record.
const Unavailable = "Information unavailable."

// Guidance is the care information shown for a detected category.
type Guidance struct {
	Category    Category `json:"category"`
	Known       bool     `json:"known"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	CareTips    string   `json:"care_tips"`
	Styling     []string `json:"styling,omitempty"`
	VideoID     string   `json:"video_id,omitempty"`
}

// Placeholder is returned by Lookup for any label outside the canonical set.
var Placeholder = Guidance{
	Known:       false,
	Title:       "Unknown",
	Description: Unavailable,
	CareTips:    Unavailable,
}

// table is built once at package initialization and never modified.
var table = map[Category]Guidance{
	Straight: {
		Category: Straight,
		Known:    true,
		Title:    "Straight",
		Description: "Straight hair falls smoothly from root to tip and has a natural shine because scalp oil " +
			"spreads easily along the strand. It tends to go flat, lacks volume and struggles to hold waves or curls.",
		CareTips: "Use a lightweight shampoo and avoid heavy products.",
		Styling: []string{
			"Apply dry shampoo at the roots for volume.",
			"Use a waving iron, hot rollers or sea salt spray to add texture.",
			"Use a light mousse for long-lasting volume.",
		},
		VideoID: "7287618275112996102",
	},
	Wavy: {
		Category: Wavy,
		Known:    true,
		Title:    "Wavy",
		Description: "Wavy hair forms an \"S\" shape from the mid-lengths to the ends and usually has more natural " +
			"volume than straight hair. It tangles easily, is prone to frizz and the wave pattern can be inconsistent.",
		CareTips: "Use a sulfate-free shampoo and a moisturizing conditioner.",
		Styling: []string{
			"Scrunch or plop while the hair is half dry.",
			"Dry with a diffuser so the waves keep their natural shape.",
			"Add sea salt spray or a light mousse for lasting waves.",
		},
		VideoID: "7497634254172458247",
	},
	Curly: {
		Category: Curly,
		Known:    true,
		Title:    "Curly",
		Description: "Curly hair has a clearly visible curl pattern, especially when dry. It can look straighter " +
			"when wet and curls back up as it dries. It is prone to frizz, dryness and breakage and is hard to manage.",
		CareTips: "Use the \"squish to condish\" method and a microfiber towel.",
		Styling: []string{
			"Rake and shake or finger coil with leave-in conditioner and curl cream on damp hair.",
			"Use a diffuser on low heat to keep the curl shape.",
			"A styling gel helps hold definition longer.",
		},
		VideoID: "7425542102844476678",
	},
	Coily: {
		Category: Coily,
		Known:    true,
		Title:    "Coily",
		Description: "Coily hair has very tight spiral or zigzag coils with a coarse to very coarse texture. " +
			"Although it looks thick it is fragile, tangles easily and is damaged by frequent combing or heat.",
		CareTips: "Deep condition weekly and use the LOC method.",
		Styling: []string{
			"Wear protective styles such as twists, bantu knots or box braids.",
			"Twist outs and braid outs suit a natural look.",
			"Detangle with fingers or a wide-tooth comb.",
		},
		VideoID: "7258012818312809774",
	},
}

// Lookup returns the guidance for a category label. Matching is case-insensitive.
// Lookup never fails: unknown labels yield Placeholder with Category set to the
// normalized label.
func Lookup(label string) Guidance {
	c, ok := Parse(label)
	if !ok {
		g := Placeholder
		g.Category = c
		return g
	}
	g := table[c]
	g.Styling = append([]string(nil), g.Styling...)
	return g
}

// Table returns the guidance for every canonical category, in canonical order.
func Table() []Guidance {
	out := make([]Guidance, 0, len(all))
	for _, c := range all {
		out = append(out, Lookup(string(c)))
	}
	return out
}
