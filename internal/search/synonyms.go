package search

// TravelSynonyms maps customer vocabulary to the terms product, FAQ, and
// policy documents actually use. Keys and values are matched as substrings
// of the query, which is how Chinese queries compose.
//
// The table mirrors the vocabulary customers use in chat: price questions
// phrased five ways, refund vs cancellation vs change, visa paperwork.
var TravelSynonyms = map[string][]string{
	// Price and cost.
	"价格":  {"多少钱", "费用", "团费", "报价"},
	"多少钱": {"价格", "费用", "团费"},
	"费用":  {"价格", "多少钱", "团费"},
	"团费":  {"价格", "费用"},
	"优惠":  {"折扣", "特价", "减免"},

	// Refund, cancellation, change.
	"退款": {"退费", "退钱", "取消", "退团"},
	"取消": {"退款", "退团", "退订"},
	"退团": {"退款", "取消"},
	"改期": {"改签", "换时间", "延期"},
	"改签": {"改期", "换时间"},

	// Visa and documents.
	"签证": {"visa", "出签", "签证材料"},
	"护照": {"证件", "旅行证件"},
	"材料": {"资料", "文件", "证明"},

	// Booking and itinerary.
	"预订": {"预定", "报名", "下单"},
	"报名": {"预订", "预定"},
	"行程": {"路线", "安排", "日程"},
	"出发": {"出行", "启程", "集合"},
	"酒店": {"住宿", "宾馆"},
	"机票": {"航班", "机位"},

	// Insurance and safety.
	"保险": {"旅游险", "意外险"},
	"儿童": {"小孩", "孩子", "婴儿"},
}

// SynonymsFor returns the synonym list for a term, or nil.
func SynonymsFor(term string) []string {
	return TravelSynonyms[term]
}
