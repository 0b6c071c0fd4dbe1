package model_test

import (
	"testing"

	"algojudge/internal/judge/model"
)

func TestVerdictClassification(t *testing.T) {
	cases := []struct {
		verdict model.Verdict
		valid   bool
		fatal   bool
	}{
		{model.VerdictAC, true, false},
		{model.VerdictWA, true, false},
		{model.VerdictTLE, true, true},
		{model.VerdictMLE, true, true},
		{model.VerdictRE, true, true},
		{model.VerdictCE, true, true},
		{model.VerdictPE, false, false},
		{model.Verdict("OLE"), false, false},
	}
	for _, tc := range cases {
		if got := tc.verdict.Valid(); got != tc.valid {
			t.Errorf("%s.Valid() = %v, want %v", tc.verdict, got, tc.valid)
		}
		if got := tc.verdict.Fatal(); got != tc.fatal {
			t.Errorf("%s.Fatal() = %v, want %v", tc.verdict, got, tc.fatal)
		}
	}
}

func TestOutcomeFromResult(t *testing.T) {
	res := model.JudgingResult{
		SubmissionID:    "s-9",
		State:           model.StateCompleted,
		Status:          model.VerdictWA,
		TestCasesPassed: 1,
		TotalTestCases:  2,
		ErrorMessage:    "Wrong answer",
		Cases: []model.CaseDetail{
			{TestCaseID: 1, Status: model.VerdictAC, ActualOutput: "0 1"},
			{TestCaseID: 2, Status: model.VerdictWA, ActualOutput: "0 0", ErrorMessage: "Wrong answer"},
		},
	}
	out := model.OutcomeFromResult(res)
	if out.SubmissionID != "s-9" || out.Status != model.VerdictWA || len(out.Results) != 2 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	for _, r := range out.Results {
		if r.SubmissionID != "s-9" {
			t.Fatalf("result not bound to submission: %+v", r)
		}
	}
	if out.Results[1].ActualOutput != "0 0" {
		t.Fatalf("actual output lost: %+v", out.Results[1])
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/manifest.json"
	body := `{"problemId":3,"version":2,"tests":[{"testId":1,"inputPath":"1.in","answerPath":"1.out","order":1}]}`
	if err := writeFile(path, body); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	m, err := model.LoadManifest(path)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if m.ProblemID != 3 || len(m.Tests) != 1 || m.Tests[0].InputPath != "1.in" {
		t.Fatalf("unexpected manifest: %+v", m)
	}

	empty := dir + "/empty.json"
	if err := writeFile(empty, `{"problemId":3,"tests":[]}`); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := model.LoadManifest(empty); err == nil {
		t.Fatal("expected error for manifest without tests")
	}
}
