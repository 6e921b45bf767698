package request

import (
	"testing"
)

func TestVerificationCodeRequests_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request interface{ Validate() error }
		wantErr bool
		errMsg  string
	}{
		{
			name:    "Create with recipient",
			request: &CreateVerificationCodeRequest{Recipient: "reader@example.com"},
		},
		{
			name:    "Create with blank recipient",
			request: &CreateVerificationCodeRequest{Recipient: "   "},
			wantErr: true,
			errMsg:  "recipient is required",
		},
		{
			name:    "Verify with recipient and code",
			request: &VerifyVerificationCodeRequest{Recipient: "reader@example.com", Code: "123456"},
		},
		{
			name:    "Verify without recipient",
			request: &VerifyVerificationCodeRequest{Code: "123456"},
			wantErr: true,
			errMsg:  "recipient is required",
		},
		{
			name:    "Verify without code",
			request: &VerifyVerificationCodeRequest{Recipient: "reader@example.com"},
			wantErr: true,
			errMsg:  "code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err.Error() != tt.errMsg {
				t.Errorf("Validate() error message = %v, want %v", err.Error(), tt.errMsg)
			}
		})
	}
}
