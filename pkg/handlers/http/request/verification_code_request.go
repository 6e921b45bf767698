package request

import (
	"errors"
	"strings"
)

type CreateVerificationCodeRequest struct {
	Recipient string `json:"recipient"`
}

func (r *CreateVerificationCodeRequest) Validate() error {
	if strings.TrimSpace(r.Recipient) == "" {
		return errors.New("recipient is required")
	}
	return nil
}

type VerifyVerificationCodeRequest struct {
	Recipient string `json:"recipient"`
	Code      string `json:"code"`
}

func (r *VerifyVerificationCodeRequest) Validate() error {
	if strings.TrimSpace(r.Recipient) == "" {
		return errors.New("recipient is required")
	}
	if strings.TrimSpace(r.Code) == "" {
		return errors.New("code is required")
	}
	return nil
}
