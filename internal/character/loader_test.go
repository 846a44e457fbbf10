package character

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/easeaico/project-chara/internal/errs"
	"github.com/easeaico/project-chara/internal/types"
)

const reiCard = `{
  "id": "rei_ayanami",
  "name": "绫波零",
  "type": "anime",
  "personality": "冷淡、内敛、神秘",
  "tone": "冷酷",
  "behavioral_constraints": {
    "forbidden_words": ["哈哈"],
    "preferred_words": ["是吗", "这样"]
  },
  "system_prompt": {
    "fallback_response": "……",
    "few_shot_examples": [
      {"user": "你好", "character": "...你好。"}
    ]
  }
}`

func writeCard(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write card: %v", err)
	}
}

func newTestLoader(t *testing.T, ttl time.Duration) (*Loader, string, func(time.Duration)) {
	t.Helper()
	dir := t.TempDir()
	l, err := NewLoader(dir, ttl)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return l, dir, func(d time.Duration) { now = now.Add(d) }
}

func TestGetLoadsAndAppliesDefaults(t *testing.T) {
	l, dir, _ := newTestLoader(t, time.Hour)
	writeCard(t, dir, "rei_ayanami.json", reiCard)

	c, err := l.Get("rei_ayanami")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c.Name != "绫波零" || c.Type != types.CharacterTypeAnime {
		t.Fatalf("unexpected card: %#v", c)
	}
	if c.MaxContextLength != 4000 || c.Temperature != 0.8 || c.MaxTokens != 1000 {
		t.Fatalf("defaults not applied: %#v", c)
	}
	if c.Prompt.FallbackResponse != "……" || len(c.Prompt.FewShotExamples) != 1 {
		t.Fatalf("prompt config lost: %#v", c.Prompt)
	}
}

func TestGetUnknownCharacter(t *testing.T) {
	l, _, _ := newTestLoader(t, time.Hour)
	_, err := l.Get("missing")
	if errs.CodeOf(err) != errs.CodeCharacterNotFound {
		t.Fatalf("expected CHARACTER_NOT_FOUND, got %v", err)
	}
}

func TestGetMalformedCard(t *testing.T) {
	l, dir, _ := newTestLoader(t, time.Hour)
	writeCard(t, dir, "broken.json", "{not json")

	_, err := l.Get("broken")
	if errs.CodeOf(err) != errs.CodeCharacterLoad {
		t.Fatalf("expected CHARACTER_LOAD_ERROR, got %v", err)
	}
}

func TestSchemaRejectsCardWithoutName(t *testing.T) {
	l, dir, _ := newTestLoader(t, time.Hour)
	writeCard(t, dir, "anon.json", `{"id": "anon"}`)

	_, err := l.Get("anon")
	if errs.CodeOf(err) != errs.CodeCharacterLoad {
		t.Fatalf("expected CHARACTER_LOAD_ERROR, got %v", err)
	}
}

func TestYAMLCardLoads(t *testing.T) {
	l, dir, _ := newTestLoader(t, time.Hour)
	writeCard(t, dir, "miku_hatsune.yaml", `
id: miku_hatsune
name: 初音未来
type: anime
tone: 活泼
catchphrases:
  - 呐呐～
`)

	c, err := l.Get("miku_hatsune")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c.Name != "初音未来" || len(c.Catchphrases) != 1 {
		t.Fatalf("unexpected card: %#v", c)
	}
}

func TestCacheServesUntilTTL(t *testing.T) {
	l, dir, advance := newTestLoader(t, time.Hour)
	writeCard(t, dir, "rei_ayanami.json", reiCard)

	if _, err := l.Get("rei_ayanami"); err != nil {
		t.Fatalf("get failed: %v", err)
	}

	// A disk change is invisible while the cache is fresh.
	writeCard(t, dir, "rei_ayanami.json", `{"id": "rei_ayanami", "name": "新名字"}`)
	c, err := l.Get("rei_ayanami")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c.Name != "绫波零" {
		t.Fatalf("expected cached card, got %#v", c)
	}

	advance(2 * time.Hour)
	c, err = l.Get("rei_ayanami")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c.Name != "新名字" {
		t.Fatalf("expected reload after ttl, got %#v", c)
	}
}

func TestListSortsByNameAndSkipsBroken(t *testing.T) {
	l, dir, _ := newTestLoader(t, time.Hour)
	writeCard(t, dir, "rei_ayanami.json", reiCard)
	writeCard(t, dir, "miku_hatsune.yaml", "id: miku_hatsune\nname: 初音未来\n")
	writeCard(t, dir, "broken.json", "{oops")
	writeCard(t, dir, "notes.txt", "not a card")

	summaries, err := l.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 cards, got %#v", summaries)
	}
	if summaries[0].Name != "初音未来" || summaries[1].Name != "绫波零" {
		t.Fatalf("unexpected order: %#v", summaries)
	}
}

func TestSaveRoundTripsAndInvalidatesList(t *testing.T) {
	l, _, _ := newTestLoader(t, time.Hour)

	if _, err := l.List(); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	err := l.Save(&types.Character{ID: "asuka_langley", Name: "明日香", Tone: "傲娇"})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	summaries, err := l.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].ID != "asuka_langley" {
		t.Fatalf("expected saved card listed, got %#v", summaries)
	}
}

func TestDeleteRemovesCard(t *testing.T) {
	l, dir, _ := newTestLoader(t, time.Hour)
	writeCard(t, dir, "rei_ayanami.json", reiCard)

	if !l.Delete("rei_ayanami") {
		t.Fatal("expected delete to succeed")
	}
	if l.Delete("rei_ayanami") {
		t.Fatal("expected second delete to fail")
	}
	if l.Exists("rei_ayanami") {
		t.Fatal("deleted card must not exist")
	}
}
