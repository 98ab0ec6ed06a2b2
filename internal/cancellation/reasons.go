package cancellation

// CancelReason is why an order was cancelled before delivery. Values are
// wire values and must not change.
type CancelReason string

const (
	CustomerRequest CancelReason = "CUSTOMER_REQUEST"
	DuplicateOrder  CancelReason = "DUPLICATE_ORDER"
	InvalidInfo     CancelReason = "INVALID_INFO"
	SuspectedFraud  CancelReason = "SUSPECTED_FRAUD"
	SystemError     CancelReason = "SYSTEM_ERROR"
	CancelOther     CancelReason = "OTHER"
)

var cancelLabels = map[CancelReason]string{
	CustomerRequest: "Khách hàng yêu cầu hủy",
	DuplicateOrder:  "Đơn hàng bị trùng",
	InvalidInfo:     "Thông tin đơn hàng không hợp lệ",
	SuspectedFraud:  "Nghi ngờ gian lận",
	SystemError:     "Lỗi hệ thống",
	CancelOther:     "Khác",
}

func (r CancelReason) Valid() bool {
	_, ok := cancelLabels[r]
	return ok
}

// Label is the canonical text stored for the reason.
func (r CancelReason) Label() string { return cancelLabels[r] }

// DeliveryFailureReason is why a dispatched order could not be delivered.
type DeliveryFailureReason string

const (
	CustomerRejected DeliveryFailureReason = "CUSTOMER_REJECTED"
	CannotContact    DeliveryFailureReason = "CANNOT_CONTACT"
	WrongAddress     DeliveryFailureReason = "WRONG_ADDRESS"
	OutOfArea        DeliveryFailureReason = "OUT_OF_AREA"
	DeliveryError    DeliveryFailureReason = "DELIVERY_ERROR"
	DeliveryOther    DeliveryFailureReason = "OTHER"
)

var deliveryLabels = map[DeliveryFailureReason]string{
	CustomerRejected: "Khách hàng từ chối nhận hàng",
	CannotContact:    "Không liên lạc được với khách hàng",
	WrongAddress:     "Sai địa chỉ giao hàng",
	OutOfArea:        "Ngoài khu vực giao hàng",
	DeliveryError:    "Lỗi trong quá trình giao hàng",
	DeliveryOther:    "Khác",
}

func (r DeliveryFailureReason) Valid() bool {
	_, ok := deliveryLabels[r]
	return ok
}

func (r DeliveryFailureReason) Label() string { return deliveryLabels[r] }

// CancelReasons lists the cancellation reasons in display order.
func CancelReasons() []CancelReason {
	return []CancelReason{CustomerRequest, DuplicateOrder, InvalidInfo, SuspectedFraud, SystemError, CancelOther}
}

// DeliveryFailureReasons lists the delivery-failure reasons in display order.
func DeliveryFailureReasons() []DeliveryFailureReason {
	return []DeliveryFailureReason{CustomerRejected, CannotContact, WrongAddress, OutOfArea, DeliveryError, DeliveryOther}
}
