package notes

import (
	"strings"
	"testing"

	"github.com/michellemayes/logseq-assistant/internal/category"
)

func sampleMessage() Message {
	return Message{
		ID:         "msg-1",
		Subject:    "RE: [Ext] Budget review",
		From:       Person{Name: "Jane Doe", Address: "jane.doe@corp.com"},
		To:         []Person{{Name: "Ann", Address: "ann@vendor.io"}, {Address: "bo.li@corp.com"}},
		Received:   "2026-10-19T08:30:00Z",
		Categories: category.NewSet("AI Summarize"),
	}
}

func TestRenderInitial(t *testing.T) {
	in := RenderInput{
		Message:  sampleMessage(),
		DateLink: "[[Oct 19th, 2026]]",
		Subject:  "Budget review",
		Domains:  NewDomainSet("corp.com"),
		Terms:    []string{"Atlas"},
		Summary: Summary{
			Summary:      "Atlas budget\nneeds review",
			KeyPoints:    []string{"Atlas ships Friday", " "},
			ContextNotes: []string{"Finance asked"},
			Todos:        []string{"TODO: send numbers", "todo book room", "Call Atlas team"},
		},
	}

	want := strings.Join([]string{
		"- [[Oct 19th, 2026]]",
		"\t- Subject: Budget review",
		"\t- From: [[Jane D]]",
		"\t- To: Ann (ann@vendor.io), [[Bo L]]",
		"\t- Received: 2026-10-19T08:30:00Z",
		"\t- **Summary:** [[Atlas]] budget needs review",
		"\t- **Key Points:**",
		"\t\t- [[Atlas]] ships Friday",
		"\t- **Context:**",
		"\t\t- Finance asked",
		"\t- **Tasks:**",
		"\t\t- TODO send numbers",
		"\t\t- TODO book room",
		"\t\t- TODO Call [[Atlas]] team",
	}, "\n") + "\n"

	if got := RenderInitial(in); got != want {
		t.Fatalf("RenderInitial() mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderUpdate(t *testing.T) {
	msg := sampleMessage()
	msg.To = nil
	msg.Received = ""
	msg.Sent = "2026-10-18T22:00:00Z"

	in := RenderInput{
		Message:   msg,
		DateLink:  "[[Oct 19th, 2026]]",
		Subject:   "Budget review",
		UpdatedAt: "2026-10-19T09:00:00",
		Summary:   Summary{KeyPoints: []string{"Ship by Friday", "Needs sign-off", "Third"}},
	}

	want := strings.Join([]string{
		"- [[Oct 19th, 2026]]",
		"\t- Update for: Budget review",
		"\t- From: Jane Doe (jane.doe@corp.com)",
		"\t- Received: 2026-10-18T22:00:00Z",
		"\t- Updated: 2026-10-19T09:00:00",
		"\t- **Summary:** Ship by Friday; Needs sign-off",
		"\t- **Key Points:**",
		"\t\t- Ship by Friday",
		"\t\t- Needs sign-off",
		"\t\t- Third",
	}, "\n") + "\n"

	if got := RenderUpdate(in); got != want {
		t.Fatalf("RenderUpdate() mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderOmitsEmptySections(t *testing.T) {
	in := RenderInput{
		Message:  Message{},
		DateLink: "[[Jan 1st, 2026]]",
		Subject:  NoSubject,
	}
	got := RenderInitial(in)
	want := "- [[Jan 1st, 2026]]\n\t- Subject: No subject\n\t- From: Unknown\n\t- **Summary:** " + NoSummaryPlaceholder + "\n"
	if got != want {
		t.Fatalf("RenderInitial() = %q, want %q", got, want)
	}
	if strings.HasSuffix(got, "\n\n") {
		t.Fatal("expected exactly one trailing newline")
	}
}

func TestSummaryNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   Summary
		want string
	}{
		{name: "kept", in: Summary{Summary: "  done  "}, want: "done"},
		{name: "from key points", in: Summary{KeyPoints: []string{"Ship by Friday", "Needs sign-off"}}, want: "Ship by Friday; Needs sign-off"},
		{name: "single key point", in: Summary{KeyPoints: []string{"", "Only"}}, want: "Only"},
		{name: "placeholder", in: Summary{}, want: NoSummaryPlaceholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalized().Summary; got != tt.want {
				t.Fatalf("Normalized().Summary = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTermsUnion(t *testing.T) {
	got := Terms(NewDomainSet("corp.com"), []string{"Atlas", " atlas ", ""}, []string{"Budget", "CORP.COM"})
	want := []string{"corp.com", "Atlas", "Budget"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Terms() = %v, want %v", got, want)
	}
}
