package premium

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/examtrack/core"
)

// Code is a one-time activation code. Redeeming it deletes it.
type Code struct {
	Code      string    `json:"code"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type GenerateCodes struct {
	Count int `json:"count" validate:"min=0,max=50"` // 0: one code
}

func (gc GenerateCodes) Validate(validate *validator.Validate) error { return validate.Struct(gc) }

type RedeemCode struct {
	Code string `json:"code" validate:"required,alphanum,max=20"`
}

func (rc *RedeemCode) Validate(validate *validator.Validate) error {
	rc.Code = cleanCode(rc.Code)
	return validate.Struct(rc)
}

type ActivateUser struct {
	AccessCode string `json:"access_code" validate:"required,len=6,numeric"`
}

func (au *ActivateUser) Validate(validate *validator.Validate) error {
	au.AccessCode = core.CleanString(au.AccessCode)
	return validate.Struct(au)
}
