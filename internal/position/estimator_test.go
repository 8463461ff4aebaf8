package position

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nightfall-go/mapper/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exits(from int, pairs ...any) []data.Exit {
	var out []data.Exit
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, data.Exit{From: from, To: pairs[i].(int), Dir: pairs[i+1].(data.Direction)})
	}
	return out
}

func buildWorld(t *testing.T, rooms ...data.Room) *data.World {
	t.Helper()
	w, err := data.NewWorld([]data.Zone{{ID: 1, Name: "Test"}}, rooms)
	require.NoError(t, err)
	return w
}

func altarWorld(t *testing.T) *data.World {
	return buildWorld(t,
		data.Room{ID: 1, Name: "Temple", ZoneID: 1,
			Description: "There are two exits: north and east. You see an altar.",
			Exits:       exits(1, 2, data.North, 3, data.East)},
		data.Room{ID: 2, Name: "Hall", ZoneID: 1,
			Description: "A long hall hung with faded banners. There is one exit: south.",
			Exits:       exits(2, 1, data.South)},
		data.Room{ID: 3, Name: "Garden", ZoneID: 1,
			Description: "A quiet garden full of roses and humming bees. There is one exit: west.",
			Exits:       exits(3, 1, data.West)},
	)
}

func TestAltarEndToEnd(t *testing.T) {
	est := NewEstimator(altarWorld(t), Options{})
	msg := "There are two exits: north and east. You see an altar."

	got := est.Estimate(msg, nil)

	id, ok := got.Room()
	require.True(t, ok)
	assert.Equal(t, 1, id)
	assert.Equal(t, Strong, got.Confidence)
	assert.Equal(t, 1.0, got.ExitRatio)
	assert.Equal(t, MethodExits, got.Method)
	assert.Equal(t, []Range{{Start: 0, End: len(msg)}}, got.Highlights)
}

func TestHighlightsSkipANSI(t *testing.T) {
	est := NewEstimator(altarWorld(t), Options{})
	msg := "\x1b[1mThere are two exits: north and east.\x1b[0m You see an altar.\r\n"

	got := est.Estimate(msg, nil)

	require.NotNil(t, got.RoomID)
	assert.Equal(t, 1, *got.RoomID)
	assert.Equal(t, []Range{{Start: 4, End: len(msg) - 2}}, got.Highlights)
}

func TestEstimatorDeterministic(t *testing.T) {
	est := NewEstimator(altarWorld(t), Options{})
	msg := "A long hall hung with faded banners, dusty and silent. There is one exit: south."
	cur := 1

	first := est.Estimate(msg, &cur)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, est.Estimate(msg, &cur))
	}
	require.NotNil(t, first.RoomID)
	assert.Equal(t, 2, *first.RoomID)
}

func TestExitEvidenceWins(t *testing.T) {
	desc := "A dusty crossroads. Weathered signposts point in every direction and paths run off into the fog."
	w := buildWorld(t,
		data.Room{ID: 10, Name: "Crossroads", ZoneID: 1, Description: desc,
			Exits: exits(10, 12, data.North, 12, data.South)},
		data.Room{ID: 11, Name: "Crossroads", ZoneID: 1, Description: desc,
			Exits: exits(11, 12, data.East, 12, data.West)},
		data.Room{ID: 12, Name: "Fog", ZoneID: 1, Description: "Grey fog surrounds you.",
			Exits: exits(12, 10, data.Up, 11, data.Down)},
	)
	est := NewEstimator(w, Options{})

	got := est.Estimate(desc+" There are two obvious exits: east and west.", nil)

	require.NotNil(t, got.RoomID)
	assert.Equal(t, 11, *got.RoomID)
	assert.Equal(t, Strong, got.Confidence)
	assert.Equal(t, 1.0, got.ExitRatio)
}

func TestFullCorpusStrongMatch(t *testing.T) {
	rooms := []data.Room{
		{ID: 1, Name: "Market", ZoneID: 1, Description: "Stalls crowd the market place. Merchants shout their prices at passing travellers."},
		{ID: 2, Name: "Harbour", ZoneID: 1, Description: "Ships rock gently at the piers while gulls circle above the harbour master's office."},
		{ID: 3, Name: "Library", ZoneID: 1, Description: "Endless shelves of dusty books line the walls of this silent library. A candle flickers on a reading desk."},
		{ID: 4, Name: "Smithy", ZoneID: 1, Description: "The heat of the forge hits you. A burly smith hammers a glowing blade on the anvil."},
	}
	est := NewEstimator(buildWorld(t, rooms...), Options{})
	msg := "Endless shelves of dusty books line the walls\nof this silent library.  A candle flickers on a \x1b[33mreading desk\x1b[0m."

	got := est.Estimate(msg, nil)

	require.NotNil(t, got.RoomID)
	assert.Equal(t, 3, *got.RoomID)
	assert.Equal(t, Strong, got.Confidence)
	assert.GreaterOrEqual(t, got.Similarity, StrongSimilarity)
	assert.NotEmpty(t, got.Highlights)
	for _, r := range got.Highlights {
		assert.Less(t, r.Start, r.End)
		assert.LessOrEqual(t, r.End, len(msg))
	}
}

func TestSimilarityOverridesWordVote(t *testing.T) {
	w := buildWorld(t,
		data.Room{ID: 1, Name: "Cellar", ZoneID: 1,
			Description: "A damp cellar. Barrels of ale are stacked against the wall and rats scurry in the dark corners."},
		data.Room{ID: 2, Name: "Tavern", ZoneID: 1,
			Description: "Celar barels stakced wal scury drak: the damp of ale are against and rats in a corners."},
	)
	est := NewEstimator(w, Options{})
	// Misspelt words vote for room 2; the text as a whole is room 1.
	msg := "A damp celar. Barels of ale are stakced against the wal and rats scury in the drak corners."

	got := est.Estimate(msg, nil)
	require.NotNil(t, got.RoomID)
	assert.Equal(t, 1, *got.RoomID)
	assert.Equal(t, MethodSimilarity, got.Method)
	assert.Equal(t, Strong, got.Confidence)
	assert.NotEmpty(t, got.Highlights)
}

func TestRejectsNonRoomText(t *testing.T) {
	est := NewEstimator(altarWorld(t), Options{
		Ignore: func(text string) bool { return text == "You are hungry. You should find something to eat soon, traveller." },
	})

	assert.Nil(t, est.Estimate("You see an altar.", nil).RoomID, "too short")
	assert.Nil(t, est.Estimate("Welcome back! There are two exits: north and east. You see an altar.", nil).RoomID)
	assert.Nil(t, est.Estimate("You are hungry.   You should find something to eat soon, traveller.", nil).RoomID)
	assert.Equal(t, None, est.Estimate("", nil).Confidence)
}

func TestSearchSetUsesNeighbours(t *testing.T) {
	est := NewEstimator(altarWorld(t), Options{})

	cur := 2
	assert.Equal(t, []int{0, 1}, est.searchSet(&cur))
	cur = 1
	assert.Equal(t, []int{0, 1, 2}, est.searchSet(&cur))
	unknown := 99
	assert.Len(t, est.searchSet(&unknown), 3)
	assert.Len(t, est.searchSet(nil), 3)
}

func TestParseExits(t *testing.T) {
	cases := []struct {
		text string
		want []data.Direction
	}{
		{"There are three obvious exits: north, south and up.", []data.Direction{data.North, data.South, data.Up}},
		{"There is one exit: leave.", []data.Direction{data.Leave}},
		{"Obvious exits: ne, sw", []data.Direction{data.NorthEast, data.SouthWest}},
		{"The path leads north-west and down.", []data.Direction{data.NorthWest, data.Down}},
	}
	for _, c := range cases {
		got, ok := parseExits(c.text)
		require.True(t, ok, c.text)
		assert.Equal(t, c.want, got.Directions(), c.text)
	}

	// A period-less exits line ends at the line break.
	got, ok := parseExits(stripANSI("A cobbled plaza.\r\n\x1b[32mObvious exits: north, south\x1b[0m\r\nA guard stands here looking east and west."))
	require.True(t, ok)
	assert.Equal(t, []data.Direction{data.North, data.South}, got.Directions())

	_, ok = parseExits("A room without any way out.")
	assert.False(t, ok)
	_, ok = parseExits("Exits: none")
	assert.False(t, ok)
}

func TestExitsLineStopsAtLineBreak(t *testing.T) {
	w := buildWorld(t,
		data.Room{ID: 1, Name: "Plaza", ZoneID: 1, Description: "Cobbles.",
			Exits: exits(1, 2, data.North, 3, data.South)},
		data.Room{ID: 2, Name: "Gate", ZoneID: 1, Description: "Iron gate.",
			Exits: exits(2, 1, data.South, 3, data.East, 3, data.West, 3, data.North)},
		data.Room{ID: 3, Name: "Lane", ZoneID: 1, Description: "Narrow lane.",
			Exits: exits(3, 1, data.North)},
	)
	est := NewEstimator(w, Options{})

	got := est.Estimate("A cobbled plaza.\nObvious exits: north, south\nA guard stands here looking east and west.", nil)

	require.NotNil(t, got.RoomID)
	assert.Equal(t, 1, *got.RoomID)
	assert.Equal(t, 1.0, got.ExitRatio)
	assert.Equal(t, Strong, got.Confidence)
}

func TestContradictedNeighboursSearchWholeWorld(t *testing.T) {
	w := buildWorld(t,
		data.Room{ID: 1, Name: "Temple", ZoneID: 1, Description: "Incense smoke drifts.",
			Exits: exits(1, 2, data.North)},
		data.Room{ID: 2, Name: "Hall", ZoneID: 1, Description: "The planks are rotten.",
			Exits: exits(2, 1, data.South)},
		data.Room{ID: 3, Name: "Bridge", ZoneID: 1, Description: "Wind howls here.",
			Exits: exits(3, 4, data.East, 4, data.West)},
		data.Room{ID: 4, Name: "Cliff", ZoneID: 1, Description: "Cliff top.",
			Exits: exits(4, 3, data.East)},
	)
	est := NewEstimator(w, Options{})
	msg := "The planks creak under your boots as fog rolls past. There are two exits: east and west."
	cur := 1

	got := est.Estimate(msg, &cur)

	require.NotNil(t, got.RoomID)
	assert.Equal(t, 3, *got.RoomID)
	assert.Equal(t, MethodExits, got.Method)
	assert.Equal(t, Strong, got.Confidence)

	// Without exits the local word vote still stands.
	got = est.Estimate("The planks creak under your boots as fog rolls past, slowly.", &cur)
	require.NotNil(t, got.RoomID)
	assert.Equal(t, 2, *got.RoomID)
	assert.Equal(t, Weak, got.Confidence)
}

func TestLongDescriptionIsHighlighted(t *testing.T) {
	var b strings.Builder
	for i := 0; b.Len() <= 2100; i++ {
		fmt.Fprintf(&b, "Pillar %d rises from the cracked flagstones of the hall. ", i)
	}
	desc := strings.TrimSpace(b.String())
	est := NewEstimator(buildWorld(t, data.Room{ID: 1, Name: "Pillared Hall", ZoneID: 1, Description: desc}), Options{})

	got := est.Estimate(desc, nil)

	require.NotNil(t, got.RoomID)
	assert.Equal(t, Strong, got.Confidence)
	assert.Equal(t, 1.0, got.Similarity)
	assert.Equal(t, []Range{{Start: 0, End: len(desc)}}, got.Highlights)
}
