package lang

// GlueWords is the fixed closed vocabulary of particles and function words
// the generator may always use, even though they are never passed in the
// allowed-support list. The token-budget validator treats them as allowed.
var GlueWords = []string{
	"이", "가", "은", "는", "을", "를", "에", "에서",
	"로", "으로", "와", "과", "랑", "하고", "도", "만",
	"그리고", "그래서", "근데", "그런데",
	"네", "응", "아니요", "맞아요", "아니에요",
	"있어요", "없어요", "있어", "없어",
	"뭐", "뭐가", "뭐예요", "어디", "어디예요", "어때요",
	"여기", "거기", "저기", "지금", "오늘", "내일",
	"좋아요", "싫어요", "안", "못", "좀", "더",
	"해주세요", "주세요", "해요", "해", "했어요", "할까요",
	"싶어요", "돼", "되요", "돼요", "맞아",
}

// Interjections allowed on top of the glue vocabulary during validation.
var Interjections = []string{
	"아", "응", "네", "그래", "그럼", "음", "아니", "그리고", "그래서",
}

var glueSet = func() map[string]bool {
	m := make(map[string]bool, len(GlueWords))
	for _, w := range GlueWords {
		m[w] = true
	}
	return m
}()

// IsGlue reports whether w is part of the closed glue vocabulary.
func IsGlue(w string) bool {
	return glueSet[w]
}
