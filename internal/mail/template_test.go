package mail

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lalithlochan/courier/internal/db"
)

func TestRenderWithRelatedQuery(t *testing.T) {
	renderer := NewRenderer("https://support.example.com/")
	queryID := uuid.New()

	body, err := renderer.Render(&db.Notification{
		ID:           uuid.New(),
		Title:        "New response on your query",
		Message:      "An agent has replied.",
		RelatedQuery: &queryID,
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if !strings.Contains(body, "Customer Service Update") {
		t.Error("missing header text")
	}
	if !strings.Contains(body, "New response on your query") {
		t.Error("missing title")
	}
	if !strings.Contains(body, "An agent has replied.") {
		t.Error("missing message")
	}
	wantLink := "https://support.example.com/queries/" + queryID.String()
	if !strings.Contains(body, wantLink) {
		t.Errorf("missing deep link %s", wantLink)
	}
	if !strings.Contains(body, "View Query Details") {
		t.Error("missing button label")
	}
}

func TestRenderWithoutRelatedQuery(t *testing.T) {
	renderer := NewRenderer("https://support.example.com")

	body, err := renderer.Render(&db.Notification{
		ID:      uuid.New(),
		Title:   "Maintenance window",
		Message: "Scheduled downtime on Saturday.",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if strings.Contains(body, "View Query Details") {
		t.Error("button must be omitted when there is no related query")
	}
	if strings.Contains(body, "/queries/") {
		t.Error("deep link must be omitted when there is no related query")
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	renderer := NewRenderer("https://support.example.com")

	body, err := renderer.Render(&db.Notification{
		ID:      uuid.New(),
		Title:   "Update <script>alert(1)</script>",
		Message: "Status is now \"resolved\" & closed",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("title must not pass through unescaped")
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Error("expected escaped title markup")
	}
	if !strings.Contains(body, "&amp; closed") {
		t.Error("expected escaped ampersand in message")
	}
}
