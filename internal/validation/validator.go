package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/discount"
)

// New returns a configured validator with the reason tags and struct-level
// rules registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()
	// report fields by the name clients send
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	_ = v.RegisterValidation("cancel_reason", func(fl validatorv10.FieldLevel) bool {
		return cancellation.CancelReason(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("delivery_reason", func(fl validatorv10.FieldLevel) bool {
		return cancellation.DeliveryFailureReason(fl.Field().String()).Valid()
	})

	v.RegisterStructValidation(cancelStructValidation, CancelRequest{})
	v.RegisterStructValidation(failedDeliveryStructValidation, FailedDeliveryRequest{})
	v.RegisterStructValidation(promotionStructValidation, Promotion{})
	v.RegisterStructValidation(voucherStructValidation, VoucherRequest{})

	return v
}

// OTHER carries no canonical label, so the note becomes the stored reason.
func cancelStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CancelRequest)
	if req.ReasonCode == string(cancellation.CancelOther) && strings.TrimSpace(req.Note) == "" {
		sl.ReportError(req.Note, "note", "Note", "required_for_other", "")
	}
}

func failedDeliveryStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(FailedDeliveryRequest)
	if req.ReasonCode == string(cancellation.DeliveryOther) && strings.TrimSpace(req.Note) == "" {
		sl.ReportError(req.Note, "note", "Note", "required_for_other", "")
	}
}

func promotionStructValidation(sl validatorv10.StructLevel) {
	p := sl.Current().Interface().(Promotion)
	if _, err := discount.ParsePromotionRule(discount.Kind(p.DiscountType), p.DiscountValue); err != nil {
		sl.ReportError(p.DiscountValue, "discountValue", "DiscountValue", "discount_rule", err.Error())
	}
}

func voucherStructValidation(sl validatorv10.StructLevel) {
	r := sl.Current().Interface().(VoucherRequest)
	if _, err := discount.ParseRule(discount.Kind(r.DiscountType), r.DiscountValue); err != nil {
		sl.ReportError(r.DiscountValue, "discountValue", "DiscountValue", "discount_rule", err.Error())
	}
}
