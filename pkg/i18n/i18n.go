package i18n

import "strings"

var translations = map[string]string{
	"invalid request":                  "अमान्य अनुरोध",
	"failed to generate token":         "टोकन बनाने में त्रुटि",
	"failed to get user":               "उपयोगकर्ता प्राप्त करने में त्रुटि",
	"missing authorization token":      "प्रमाणीकरण टोकन नहीं मिला",
	"invalid token":                    "अमान्य टोकन",
	"failed to validate user":          "उपयोगकर्ता सत्यापन में त्रुटि",
	"user not found":                   "उपयोगकर्ता नहीं मिला",
	"unauthorized":                     "अनधिकृत पहुँच",
	"user unavailable":                 "उपयोगकर्ता उपलब्ध नहीं है",
	"post not found":                   "पोस्ट नहीं मिली",
	"post content required":            "पोस्ट की सामग्री आवश्यक है",
	"can only edit own posts":          "केवल अपनी पोस्ट संपादित कर सकते हैं",
	"can only delete own posts":        "केवल अपनी पोस्ट हटा सकते हैं",
	"failed to save post":              "पोस्ट सहेजने में त्रुटि",
	"failed to fetch posts":            "पोस्ट प्राप्त करने में त्रुटि",
	"failed to fetch post":             "पोस्ट प्राप्त करने में त्रुटि",
	"failed to delete post":            "पोस्ट हटाने में त्रुटि",
	"failed to toggle like":            "लाइक बदलने में त्रुटि",
	"failed to toggle save":            "सेव बदलने में त्रुटि",
	"comment text required":            "टिप्पणी आवश्यक है",
	"comment not found":                "टिप्पणी नहीं मिली",
	"reply target not on this post":    "उत्तर की टिप्पणी इस पोस्ट पर नहीं है",
	"failed to fetch comments":         "टिप्पणियाँ प्राप्त करने में त्रुटि",
	"failed to save comment":           "टिप्पणी सहेजने में त्रुटि",
	"cannot follow yourself":           "स्वयं को फ़ॉलो नहीं कर सकते",
	"cannot block yourself":            "स्वयं को ब्लॉक नहीं कर सकते",
	"failed to update follow":          "फ़ॉलो बदलने में त्रुटि",
	"failed to update block":           "ब्लॉक बदलने में त्रुटि",
	"failed to fetch blocked users":    "ब्लॉक सूची प्राप्त करने में त्रुटि",
	"failed to update profile":         "प्रोफ़ाइल अपडेट करने में त्रुटि",
	"failed to fetch profile":          "प्रोफ़ाइल प्राप्त करने में त्रुटि",
	"failed to search users":           "उपयोगकर्ता खोज में त्रुटि",
	"chat not found":                   "चैट नहीं मिली",
	"not a participant":                "आप इस चैट के सदस्य नहीं हैं",
	"cannot chat with yourself":        "स्वयं से चैट नहीं कर सकते",
	"cannot chat with this user":       "इस उपयोगकर्ता से चैट नहीं कर सकते",
	"failed to create chat":            "चैट बनाने में त्रुटि",
	"failed to fetch chats":            "चैट प्राप्त करने में त्रुटि",
	"failed to fetch messages":         "संदेश प्राप्त करने में त्रुटि",
	"failed to send message":           "संदेश भेजने में त्रुटि",
	"failed to delete chats":           "चैट हटाने में त्रुटि",
	"failed to update chat":            "चैट अपडेट करने में त्रुटि",
	"message not found":                "संदेश नहीं मिला",
	"message text required":            "संदेश आवश्यक है",
	"can only delete own messages":     "केवल अपने संदेश हटा सकते हैं",
	"failed to delete message":         "संदेश हटाने में त्रुटि",
	"reply target not in this chat":    "उत्तर का संदेश इस चैट में नहीं है",
	"nothing to forward":               "अग्रेषित करने के लिए कुछ नहीं",
	"recipients required":              "प्राप्तकर्ता आवश्यक हैं",
	"notification not found":           "सूचना नहीं मिली",
	"failed to fetch notifications":    "सूचनाएँ प्राप्त करने में त्रुटि",
	"failed to update notifications":   "सूचनाएँ अपडेट करने में त्रुटि",
	"failed to delete notification":    "सूचना हटाने में त्रुटि",
	"failed to fetch activity":         "गतिविधि प्राप्त करने में त्रुटि",
	"invalid activity tab":             "अमान्य गतिविधि टैब",
	"invalid view":                     "अमान्य दृश्य",
	"failed to save view state":        "दृश्य स्थिति सहेजने में त्रुटि",
	"failed to fetch view state":       "दृश्य स्थिति प्राप्त करने में त्रुटि",
	"file is required":                 "फ़ाइल आवश्यक है",
	"file too large":                   "फ़ाइल बहुत बड़ी है",
	"file must be an image":            "फ़ाइल चित्र होनी चाहिए",
	"file must be an audio clip":       "फ़ाइल ऑडियो होनी चाहिए",
	"avatar file is required":          "अवतार फ़ाइल आवश्यक है",
	"avatar must be smaller than 2MB":  "अवतार 2MB से छोटा होना चाहिए",
	"failed to save file":              "फ़ाइल सहेजने में त्रुटि",
	"failed to save avatar":            "अवतार सहेजने में त्रुटि",
	"failed to update avatar":          "अवतार अपडेट करने में त्रुटि",
	"username required":                "उपयोगकर्ता नाम आवश्यक है",
	"email required":                   "ईमेल आवश्यक है",
	"websocket upgrade failed":         "वेबसॉकेट कनेक्शन में त्रुटि",
	"rate limiter error":               "अनुरोध सीमक में त्रुटि",
	"rate limit exceeded":              "बहुत अधिक अनुरोध",
	"internal server error":            "आंतरिक सर्वर त्रुटि",
	"not found":                        "नहीं मिला",
	"username must be between 3 and 32 characters":                "उपयोगकर्ता नाम 3 से 32 अक्षरों के बीच होना चाहिए",
	"username can only contain letters, numbers, and underscores": "उपयोगकर्ता नाम में केवल अक्षर, अंक और अंडरस्कोर हो सकते हैं",
	"password must be at least 6 characters":                      "पासवर्ड कम से कम 6 अक्षरों का होना चाहिए",
	"username already taken":           "यह उपयोगकर्ता नाम पहले से लिया जा चुका है",
	"email already registered":         "यह ईमेल पहले से पंजीकृत है",
	"invalid email or password":        "ईमेल या पासवर्ड गलत है",
}

var prefixTranslations = map[string]string{
	"failed to hash password:":   "पासवर्ड प्रोसेस करने में त्रुटि",
	"failed to register user:":   "पंजीकरण में त्रुटि",
	"failed to get user id:":     "उपयोगकर्ता आईडी प्राप्त करने में त्रुटि",
	"failed to query user:":      "उपयोगकर्ता जानकारी प्राप्त करने में त्रुटि",
	"failed to generate token:":  "टोकन बनाने में त्रुटि",
	"failed to sign token:":      "टोकन हस्ताक्षर में त्रुटि",
	"failed to parse token:":     "अमान्य टोकन",
	"unexpected signing method:": "अमान्य टोकन हस्ताक्षर विधि",
}

func Translate(message string) string {
	if translated, ok := translations[message]; ok {
		return translated
	}
	for prefix, translated := range prefixTranslations {
		if strings.HasPrefix(message, prefix) {
			return translated
		}
	}
	return message
}
