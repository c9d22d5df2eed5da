package normalizer

import "strings"

var stopWords = buildSet(
	// english
	"i me my myself we our ours ourselves you your yours yourself yourselves he him his himself "+
		"she her hers herself it its itself they them their theirs themselves what which who whom "+
		"this that these those am is are was were be been being have has had having do does did "+
		"doing a an the and but if or because as until while of at by for with about against "+
		"between into through during before after above below to from up down in out on off over "+
		"under again further then once here there when where why how all any both each few more "+
		"most other some such no nor not only own same so than too very s t can will just don "+
		"should now d ll m o re ve y ain aren couldn didn doesn hadn hasn haven isn ma mightn "+
		"mustn needn shan shouldn wasn weren won wouldn",
	// russian
	"и в во не что он на я с со как а то все она так его но да ты к у же вы за бы по только "+
		"ее мне было вот от меня еще нет о из ему теперь когда даже ну вдруг ли если уже или ни "+
		"быть был него до вас нибудь опять уж вам ведь там потом себя ничего ей может они тут где "+
		"есть надо ней для мы тебя их чем была сам чтоб без будто чего раз тоже себе под будет ж "+
		"тогда кто этот того потому этого какой совсем ним здесь этом один почти мой тем чтобы "+
		"нее сейчас были куда зачем всех никогда можно при наконец два об другой хоть после над "+
		"больше тот через эти нас про всего них какая много разве три эту моя впрочем хорошо свою "+
		"этой перед иногда лучше чуть том нельзя такой им более всегда конечно всю между",
)

// irregular base forms; regular English plurals are handled by rule in Lemmatize
var lemmas = map[string]string{
	"men":      "man",
	"women":    "woman",
	"children": "child",
	"feet":     "foot",
	"teeth":    "tooth",
	"mice":     "mouse",
	"geese":    "goose",
	"leaves":   "leaf",
	"knives":   "knife",
	"wives":    "wife",
	"lives":    "life",
	"halves":   "half",
	"shelves":  "shelf",
	"wolves":   "wolf",
	"data":     "datum",

	"средства":     "средство",
	"средств":      "средство",
	"моющее":       "моющий",
	"моющая":       "моющий",
	"чистящее":     "чистящий",
	"чистящая":     "чистящий",
	"очистители":   "очиститель",
	"очистителя":   "очиститель",
	"концентрата":  "концентрат",
	"пятен":        "пятно",
	"пятна":        "пятно",
	"поверхностей": "поверхность",
	"поверхности":  "поверхность",
	"литра":        "литр",
	"литров":       "литр",
	"флакона":      "флакон",
	"канистра":     "канистра",
	"канистры":     "канистра",
}

func buildSet(lists ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, list := range lists {
		for _, w := range strings.Fields(list) {
			set[w] = struct{}{}
		}
	}
	return set
}

// IsStopWord reports whether token is an English or Russian stop word.
func IsStopWord(token string) bool {
	_, ok := stopWords[token]
	return ok
}

// Lemmatize reduces a lowercase token to its dictionary base form.
func Lemmatize(token string) string {
	if lemma, ok := lemmas[token]; ok {
		return lemma
	}
	if DetectScript(token) != ScriptLatin || len(token) <= 3 {
		return token
	}

	switch {
	case strings.HasSuffix(token, "ies") && len(token) > 4:
		return token[:len(token)-3] + "y"
	case strings.HasSuffix(token, "sses"),
		strings.HasSuffix(token, "ches"),
		strings.HasSuffix(token, "shes"),
		strings.HasSuffix(token, "xes"),
		strings.HasSuffix(token, "zes"):
		return token[:len(token)-2]
	case strings.HasSuffix(token, "s") &&
		!strings.HasSuffix(token, "ss") &&
		!strings.HasSuffix(token, "us") &&
		!strings.HasSuffix(token, "is"):
		return token[:len(token)-1]
	}
	return token
}
