package payment

import "github.com/imrishuroy/pos-orderflow/internal/orders"

// ResponseCode is one row of the gateway's response code table.
type ResponseCode struct {
	Code    string
	Message string
	// Suspicious marks a debit the gateway flagged for review (07).
	Suspicious bool
}

const (
	CodeSuccess = "00"
	CodeOther   = "99"
)

var responseCodes = map[string]ResponseCode{
	"00": {Code: "00", Message: "Giao dịch thành công"},
	"07": {Code: "07", Message: "Trừ tiền thành công. Giao dịch bị nghi ngờ (liên quan tới lừa đảo, giao dịch bất thường).", Suspicious: true},
	"09": {Code: "09", Message: "Giao dịch không thành công do: Thẻ/Tài khoản của khách hàng chưa đăng ký dịch vụ InternetBanking tại ngân hàng."},
	"10": {Code: "10", Message: "Giao dịch không thành công do: Khách hàng xác thực thông tin thẻ/tài khoản không đúng quá 3 lần"},
	"11": {Code: "11", Message: "Giao dịch không thành công do: Đã hết hạn chờ thanh toán. Xin quý khách vui lòng thực hiện lại giao dịch."},
	"12": {Code: "12", Message: "Giao dịch không thành công do: Thẻ/Tài khoản của khách hàng bị khóa."},
	"13": {Code: "13", Message: "Giao dịch không thành công do Quý khách nhập sai mật khẩu xác thực giao dịch (OTP). Xin quý khách vui lòng thực hiện lại giao dịch."},
	"24": {Code: "24", Message: "Giao dịch không thành công do: Khách hàng hủy giao dịch"},
	"51": {Code: "51", Message: "Giao dịch không thành công do: Tài khoản của quý khách không đủ số dư để thực hiện giao dịch."},
	"65": {Code: "65", Message: "Giao dịch không thành công do: Tài khoản của Quý khách đã vượt quá hạn mức giao dịch trong ngày."},
	"75": {Code: "75", Message: "Ngân hàng thanh toán đang bảo trì."},
	"79": {Code: "79", Message: "Giao dịch không thành công do: KH nhập sai mật khẩu thanh toán quá số lần quy định. Xin quý khách vui lòng thực hiện lại giao dịch"},
	"99": {Code: "99", Message: "Các lỗi khác (lỗi còn lại, không có trong danh sách mã lỗi đã liệt kê)"},
}

// Lookup returns the table row for code. Unknown codes map to 99.
func Lookup(code string) ResponseCode {
	if rc, ok := responseCodes[code]; ok {
		return rc
	}
	return responseCodes[CodeOther]
}

func Message(code string) string { return Lookup(code).Message }

// LocalVerdict is the gateway's own view of the code: only 00 is a success.
func LocalVerdict(code string) orders.Verdict {
	if code == CodeSuccess {
		return orders.VerdictSuccess
	}
	return orders.VerdictFailed
}

// messageFor is the text shown for a settled verdict. A 00 the backend
// refused (amount mismatch, stale attempt) shows the generic failure.
func messageFor(code string, v orders.Verdict) string {
	if v == orders.VerdictFailed && code == CodeSuccess {
		return Message(CodeOther)
	}
	return Message(code)
}
