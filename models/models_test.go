package models

import "testing"

func TestCreateTaskRequestValidate(t *testing.T) {
	valid := CreateTaskRequest{
		Title:      "pick one",
		Options:    []Option{{ImageURL: "https://img/1.png"}, {ImageURL: "https://img/2.png"}},
		PaymentRef: "ref-1",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name string
		req  CreateTaskRequest
	}{
		{"no options", CreateTaskRequest{PaymentRef: "ref"}},
		{"single option", CreateTaskRequest{Options: []Option{{ImageURL: "a"}}, PaymentRef: "ref"}},
		{"blank image url", CreateTaskRequest{Options: []Option{{ImageURL: "a"}, {ImageURL: "  "}}, PaymentRef: "ref"}},
		{"missing payment ref", CreateTaskRequest{Options: []Option{{ImageURL: "a"}, {ImageURL: "b"}}}},
		{"too many options", CreateTaskRequest{Options: make([]Option, 51), PaymentRef: "ref"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSubmissionRequestValidate(t *testing.T) {
	if err := (SubmissionRequest{TaskID: 1, OptionID: 2}).Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if err := (SubmissionRequest{TaskID: 0, OptionID: 2}).Validate(); err == nil {
		t.Fatal("zero task_id must be rejected")
	}
	if err := (SubmissionRequest{TaskID: 1, OptionID: -5}).Validate(); err == nil {
		t.Fatal("negative option_id must be rejected")
	}
}

func TestSignInRequestValidate(t *testing.T) {
	if err := (SignInRequest{PublicKey: "pk", Signature: "sig"}).Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if err := (SignInRequest{Signature: "sig"}).Validate(); err == nil {
		t.Fatal("missing public_key must be rejected")
	}
	if err := (SignInRequest{PublicKey: "pk"}).Validate(); err == nil {
		t.Fatal("missing signature must be rejected")
	}
}
