package manifest

import (
	"strings"
	"testing"
)

func TestParseRequirements_Specifiers(t *testing.T) {
	input := strings.Join([]string{
		"flask==3.0.0",
		"",
		"# database driver",
		"psycopg2-binary>=2.9",
		"requests",
		"uvicorn[standard]~=0.30  # extras and a trailing comment",
		"APScheduler!=3.10.2",
	}, "\n")

	requirements, err := ParseRequirements(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	expectedNames := []string{"flask", "psycopg2-binary", "requests", "uvicorn", "APScheduler"}
	if len(requirements) != len(expectedNames) {
		t.Fatalf("Expected %d requirements, got %d", len(expectedNames), len(requirements))
	}
	for i, name := range expectedNames {
		if requirements[i].Name != name {
			t.Fatalf("Requirement %d: expected name %q, got %q", i, name, requirements[i].Name)
		}
	}
}

func TestParseRequirements_PreservesOrder(t *testing.T) {
	input := "zzz\naaa\nmmm\n"

	requirements, err := ParseRequirements(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	got := []string{requirements[0].Name, requirements[1].Name, requirements[2].Name}
	if got[0] != "zzz" || got[1] != "aaa" || got[2] != "mmm" {
		t.Fatalf("Expected file order preserved, got %v", got)
	}
}

func TestParseRequirements_InvalidName(t *testing.T) {
	cases := []string{
		"###not-a-package",
		"-starts-with-hyphen",
		"ends-with-hyphen-",
		"has spaces==1.0",
		"emoji📦==1.0",
	}

	for _, line := range cases {
		_, err := ParseRequirements(strings.NewReader(line))
		if err == nil {
			t.Fatalf("Expected error for %q", line)
		}
	}
}

func TestParseRequirements_InvalidNameReportsLine(t *testing.T) {
	input := "flask==3.0.0\n###not-a-package\n"

	_, err := ParseRequirements(strings.NewReader(input))
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("Expected line number in error, got %q", err.Error())
	}
}
