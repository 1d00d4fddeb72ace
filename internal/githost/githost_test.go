package githost

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestReadRepoListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repos.txt")
	content := "# production services\nacme/payments\n\n  acme/billing  \n# skip this\nacme/ledger\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	repos, err := ReadRepoListFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"acme/payments", "acme/billing", "acme/ledger"}
	if len(repos) != len(want) {
		t.Fatalf("repos = %v", repos)
	}
	for i := range want {
		if repos[i] != want[i] {
			t.Errorf("repos[%d] = %q, want %q", i, repos[i], want[i])
		}
	}
}

func TestReadRepoListFileMissing(t *testing.T) {
	if _, err := ReadRepoListFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("want error for missing file")
	}
}

func TestSplitRepo(t *testing.T) {
	tests := []struct {
		in          string
		owner, name string
		wantErr     bool
	}{
		{"acme/payments", "acme", "payments", false},
		{"acme/deep/path", "acme", "deep/path", false},
		{"payments", "", "", true},
		{"/payments", "", "", true},
		{"acme/", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		owner, name, err := SplitRepo(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("SplitRepo(%q) err = %v", tt.in, err)
			continue
		}
		if owner != tt.owner || name != tt.name {
			t.Errorf("SplitRepo(%q) = %q, %q", tt.in, owner, name)
		}
	}
}

// newTestHost points the GitHub client at an httptest server. The enterprise
// client prefixes every path with /api/v3.
func newTestHost(t *testing.T, mux *http.ServeMux) *GitHub {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	host, err := NewGitHubWithClient(srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	return host
}

func TestFetchOverride(t *testing.T) {
	raw := "enabled: false\n"
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/payments/contents/.github/renovate-jira.yml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"type":"file","encoding":"base64","content":"%s"}`,
			base64.StdEncoding.EncodeToString([]byte(raw)))
	})
	host := newTestHost(t, mux)

	got, err := host.FetchOverride(context.Background(), "acme/payments")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != raw {
		t.Errorf("override = %q", got)
	}
}

func TestFetchOverrideAbsent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/payments/contents/.github/renovate-jira.yml", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	host := newTestHost(t, mux)

	got, err := host.FetchOverride(context.Background(), "acme/payments")
	if err != nil {
		t.Fatalf("missing override must not error: %v", err)
	}
	if got != nil {
		t.Errorf("override = %q", got)
	}
}

func TestListOpenPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/acme/payments/pulls", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "open" {
			t.Errorf("state = %q", got)
		}
		_, _ = w.Write([]byte(`[{
			"number": 42,
			"title": "Bump log4j from 1.2.17 to 2.20.0",
			"body": "Fixes CVE-2021-44228.",
			"html_url": "https://github.com/acme/payments/pull/42",
			"labels": [{"name": "renovate"}]
		}]`))
	})
	mux.HandleFunc("/api/v3/repos/acme/payments/issues/42/comments", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"body":"Created Jira issue PLAT-7 to track this pull request."}]`))
	})
	host := newTestHost(t, mux)

	prs, err := host.ListOpenPullRequests(context.Background(), "acme/payments")
	if err != nil {
		t.Fatal(err)
	}
	if len(prs) != 1 {
		t.Fatalf("prs = %+v", prs)
	}
	pr := prs[0]
	if pr.Repo != "acme/payments" || pr.Number != 42 {
		t.Errorf("pr = %+v", pr)
	}
	if pr.URL != "https://github.com/acme/payments/pull/42" {
		t.Errorf("url = %q", pr.URL)
	}
	if len(pr.Labels) != 1 || pr.Labels[0] != "renovate" {
		t.Errorf("labels = %v", pr.Labels)
	}
	if len(pr.Comments) != 1 || pr.Comments[0] != "Created Jira issue PLAT-7 to track this pull request." {
		t.Errorf("comments = %v", pr.Comments)
	}
}

func TestResolveReposPriority(t *testing.T) {
	host := NewGitHub("", 10)

	repos, err := host.ResolveRepos(context.Background(), Selector{Repo: "acme/payments", Repos: []string{"acme/other"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 1 || repos[0] != "acme/payments" {
		t.Errorf("repos = %v", repos)
	}

	if _, err := host.ResolveRepos(context.Background(), Selector{}); err == nil {
		t.Error("empty selector must error")
	}
}
