package rules

import "regexp"

// Substitution replaces a source token with one of several candidates, chosen
// deterministically from the seed and match position.
type Substitution struct {
	ID         string
	Source     string
	Candidates []string
}

// SentencePattern rewrites the first structural match of a regex using a
// capture-group template.
type SentencePattern struct {
	ID       string
	Match    *regexp.Regexp
	Template string
}

// FillerRemoval deletes or softens a stock phrase. Once limits the rule to
// the first occurrence so repeated markers are thinned, not eradicated.
type FillerRemoval struct {
	ID          string
	Phrase      string
	Replacement string
	Once        bool
}

// markerSet groups the stock phrases used to estimate how machine-written a
// text reads. Categories follow the detector dimensions: sequencing words,
// filler phrases, vague hedges, overly formal transitions, and connector
// overuse.
type markerSet struct {
	Sequence  []string
	Filler    []string
	Vague     []string
	Formal    []string
	Connector []string
}

// Table is the complete, immutable rule configuration for one language.
// Tables are package-level constants in effect: built once, never mutated.
type Table struct {
	Lang          string
	Substitutions []Substitution
	Patterns      []SentencePattern
	Fillers       []FillerRemoval
	markers       markerSet
}

// ForLanguage returns the static rule table for a language code ("zh" or
// "en"). Unknown codes fall back to the English table.
func ForLanguage(lang string) *Table {
	if lang == "zh" {
		return zhTable
	}
	return enTable
}

var zhTable = &Table{
	Lang: "zh",
	Substitutions: []Substitution{
		{ID: "sub-zh-研究", Source: "研究", Candidates: []string{"探讨", "考察", "分析"}},
		{ID: "sub-zh-显著", Source: "显著", Candidates: []string{"明显", "突出"}},
		{ID: "sub-zh-提出", Source: "提出", Candidates: []string{"给出", "构建"}},
		{ID: "sub-zh-提高", Source: "提高", Candidates: []string{"提升", "增强", "改善"}},
		{ID: "sub-zh-重要", Source: "重要", Candidates: []string{"关键", "核心"}},
		{ID: "sub-zh-方法", Source: "方法", Candidates: []string{"途径", "手段", "方式"}},
		{ID: "sub-zh-表明", Source: "表明", Candidates: []string{"说明", "显示", "反映"}},
		{ID: "sub-zh-认为", Source: "认为", Candidates: []string{"指出", "主张"}},
		{ID: "sub-zh-采用", Source: "采用", Candidates: []string{"运用", "使用", "借助"}},
		{ID: "sub-zh-问题", Source: "问题", Candidates: []string{"议题", "难题"}},
	},
	Patterns: []SentencePattern{
		{
			ID:       "pat-zh-impact-passive",
			Match:    regexp.MustCompile(`(.+?)对(.+?)产生了(.+?)影响`),
			Template: "${2}受到${1}的${3}影响",
		},
		{
			ID:       "pat-zh-impact-passive-2",
			Match:    regexp.MustCompile(`(.+?)对(.+?)具有(.+?)作用`),
			Template: "${2}因${1}而呈现${3}变化",
		},
		{
			ID:       "pat-zh-promote-passive",
			Match:    regexp.MustCompile(`(.+?)促进了(.+?)的发展`),
			Template: "${2}的发展在${1}推动下得以实现",
		},
	},
	Fillers: []FillerRemoval{
		{ID: "fill-zh-值得注意", Phrase: "值得注意的是，", Replacement: ""},
		{ID: "fill-zh-需要指出", Phrase: "需要指出的是，", Replacement: ""},
		{ID: "fill-zh-综上所述", Phrase: "综上所述，", Replacement: ""},
		{ID: "fill-zh-总的来说", Phrase: "总的来说，", Replacement: ""},
		{ID: "fill-zh-不难发现", Phrase: "不难发现，", Replacement: ""},
		{ID: "fill-zh-显而易见", Phrase: "显而易见，", Replacement: ""},
		{ID: "fill-zh-毋庸置疑", Phrase: "毋庸置疑，", Replacement: ""},
		{ID: "fill-zh-众所周知", Phrase: "众所周知，", Replacement: ""},
		{ID: "fill-zh-事实上", Phrase: "事实上，", Replacement: ""},
		{ID: "fill-zh-不可否认", Phrase: "不可否认，", Replacement: ""},
		{ID: "fill-zh-首先", Phrase: "首先，", Replacement: "", Once: true},
		{ID: "fill-zh-其次", Phrase: "其次，", Replacement: "在此基础上，", Once: true},
		{ID: "fill-zh-再次", Phrase: "再次，", Replacement: "同样值得关注的是，", Once: true},
		{ID: "fill-zh-最后", Phrase: "最后，", Replacement: "更重要的是，", Once: true},
		{ID: "fill-zh-一方面", Phrase: "一方面，", Replacement: "从一个角度来看，", Once: true},
		{ID: "fill-zh-另一方面", Phrase: "另一方面，", Replacement: "从另一个维度来看，", Once: true},
		{ID: "fill-zh-鉴于此", Phrase: "鉴于此，", Replacement: "基于这一考虑，"},
		{ID: "fill-zh-基于此", Phrase: "基于此，", Replacement: "由此，"},
		{ID: "fill-zh-综合以上", Phrase: "综合以上分析，", Replacement: "从上述分析来看，"},
		{ID: "fill-zh-由此可见", Phrase: "由此可见，", Replacement: "这表明，"},
		{ID: "fill-zh-由此可知", Phrase: "由此可知，", Replacement: "可以看出，"},
	},
	markers: markerSet{
		Sequence: []string{
			"首先", "其次", "再次", "最后", "第一", "第二", "第三", "第四",
			"一方面", "另一方面", "此外", "同时", "另外", "与此同时",
			"紧接着", "随后", "进一步",
		},
		Filler: []string{
			"值得注意的是", "需要指出的是", "综上所述", "总的来说",
			"总而言之", "不难发现", "显而易见", "毋庸置疑", "不可否认",
			"众所周知", "事实上", "实际上", "可以说", "由此可见",
			"需要强调的是", "特别值得一提的是", "不言而喻",
		},
		Vague: []string{
			"在一定程度上", "在某种意义上", "从某种角度来看",
			"可能会", "或许", "大概", "似乎", "貌似",
			"相对而言", "总体上看", "一般来说", "通常情况下",
		},
		Formal: []string{
			"鉴于此", "基于此", "据此", "由此可见", "由此可知",
			"由上可知", "综合以上分析", "基于上述分析",
			"承上所述", "如前所述", "正如前文所述",
		},
		Connector: []string{
			"然而", "但是", "因此", "所以", "故而", "于是",
			"尽管如此", "虽然如此", "即便如此",
		},
	},
}

var enTable = &Table{
	Lang: "en",
	Substitutions: []Substitution{
		{ID: "sub-en-important", Source: "important", Candidates: []string{"crucial", "central", "pivotal"}},
		{ID: "sub-en-show", Source: "show", Candidates: []string{"demonstrate", "indicate", "reveal"}},
		{ID: "sub-en-shows", Source: "shows", Candidates: []string{"demonstrates", "indicates", "reveals"}},
		{ID: "sub-en-use", Source: "use", Candidates: []string{"employ", "apply"}},
		{ID: "sub-en-uses", Source: "uses", Candidates: []string{"employs", "applies"}},
		{ID: "sub-en-method", Source: "method", Candidates: []string{"approach", "technique", "procedure"}},
		{ID: "sub-en-significant", Source: "significant", Candidates: []string{"substantial", "notable", "pronounced"}},
		{ID: "sub-en-improve", Source: "improve", Candidates: []string{"enhance", "strengthen", "raise"}},
		{ID: "sub-en-increase", Source: "increase", Candidates: []string{"raise", "expand", "boost"}},
		{ID: "sub-en-examine", Source: "examine", Candidates: []string{"investigate", "analyze", "assess"}},
		{ID: "sub-en-result", Source: "result", Candidates: []string{"outcome", "finding"}},
		{ID: "sub-en-results", Source: "results", Candidates: []string{"outcomes", "findings"}},
	},
	Patterns: []SentencePattern{
		{
			ID:       "pat-en-promotes-passive",
			Match:    regexp.MustCompile(`(\w[\w\s]*?) promotes ([\w\s]+?)'s development`),
			Template: "$2's development is promoted by $1",
		},
		{
			ID:       "pat-en-effect-passive",
			Match:    regexp.MustCompile(`(\w[\w\s]*?) has a positive effect on ([\w\s]+)`),
			Template: "$2 is positively affected by $1",
		},
		{
			ID:       "pat-en-role",
			Match:    regexp.MustCompile(`(\w[\w\s]*?) plays an? (?:important|crucial|central|pivotal) role in ([\w\s]+)`),
			Template: "$2 is strongly shaped by $1",
		},
	},
	Fillers: []FillerRemoval{
		{ID: "fill-en-worth-noting", Phrase: "It is worth noting that ", Replacement: ""},
		{ID: "fill-en-pointed-out", Phrase: "It should be pointed out that ", Replacement: ""},
		{ID: "fill-en-in-conclusion", Phrase: "In conclusion, ", Replacement: ""},
		{ID: "fill-en-in-summary", Phrase: "In summary, ", Replacement: ""},
		{ID: "fill-en-needless", Phrase: "Needless to say, ", Replacement: ""},
		{ID: "fill-en-as-we-know", Phrase: "As we all know, ", Replacement: ""},
		{ID: "fill-en-undeniable", Phrase: "It is undeniable that ", Replacement: ""},
		{ID: "fill-en-firstly", Phrase: "Firstly, ", Replacement: "", Once: true},
		{ID: "fill-en-secondly", Phrase: "Secondly, ", Replacement: "Building on this, ", Once: true},
		{ID: "fill-en-thirdly", Phrase: "Thirdly, ", Replacement: "Equally relevant, ", Once: true},
		{ID: "fill-en-finally", Phrase: "Finally, ", Replacement: "More importantly, ", Once: true},
		{ID: "fill-en-on-one-hand", Phrase: "On the one hand, ", Replacement: "From one angle, ", Once: true},
		{ID: "fill-en-on-other-hand", Phrase: "On the other hand, ", Replacement: "From another angle, ", Once: true},
		{ID: "fill-en-furthermore", Phrase: "Furthermore, ", Replacement: "Beyond this, "},
		{ID: "fill-en-moreover", Phrase: "Moreover, ", Replacement: "Added to this, "},
	},
	markers: markerSet{
		Sequence: []string{
			"Firstly", "Secondly", "Thirdly", "Finally", "First of all",
			"On the one hand", "On the other hand", "Furthermore",
			"Moreover", "In addition", "Subsequently",
		},
		Filler: []string{
			"It is worth noting that", "It should be pointed out that",
			"In conclusion", "In summary", "Needless to say",
			"As we all know", "It is undeniable that", "As a matter of fact",
			"It goes without saying",
		},
		Vague: []string{
			"to some extent", "in a sense", "from a certain perspective",
			"perhaps", "arguably", "generally speaking", "in most cases",
			"it seems that",
		},
		Formal: []string{
			"In light of this", "Based on this", "Accordingly",
			"As mentioned above", "As stated previously", "Given the above",
		},
		Connector: []string{
			"However", "Therefore", "Thus", "Hence", "Nevertheless",
			"Nonetheless", "Consequently",
		},
	},
}

// DefaultPreserveTerms is the built-in glossary of methodology and statistics
// vocabulary that must never be rewritten. It is merged with caller-supplied
// terms for every dedup request.
var DefaultPreserveTerms = []string{
	// causal inference methods
	"双重差分", "DID", "difference-in-differences",
	"倾向得分匹配", "PSM", "propensity score matching",
	"工具变量", "IV", "instrumental variable", "2SLS", "两阶段最小二乘",
	"断点回归", "RDD", "regression discontinuity",
	"固定效应", "fixed effects", "FE", "个体固定效应", "时间固定效应",
	"随机效应", "random effects", "RE",
	"面板数据", "panel data",
	"广义矩估计", "GMM", "系统GMM", "差分GMM",
	"中介效应", "mediating effect", "中介变量",
	"调节效应", "moderating effect", "调节变量",
	"合成控制法", "SCM", "synthetic control",
	"事件研究法", "event study",
	// statistics
	"显著性", "significance",
	"稳健性", "robustness", "稳健性检验",
	"内生性", "endogeneity",
	"异方差", "heteroskedasticity",
	"自相关", "autocorrelation",
	"多重共线性", "multicollinearity", "VIF",
	"t统计量", "t值", "t-statistic",
	"F统计量", "F值", "F-test",
	"R方", "R²", "R-squared",
	"标准误", "standard error", "聚类标准误",
	"置信区间", "confidence interval",
	"p值", "p-value",
	"Bootstrap", "自助法",
	// economics
	"边际效应", "marginal effect",
	"弹性", "elasticity",
	"外部性", "externality",
	"信息不对称", "information asymmetry",
	"委托代理", "principal-agent",
	"道德风险", "moral hazard",
	"逆向选择", "adverse selection",
	"交易成本", "transaction cost",
	"规模经济", "economies of scale",
	"范围经济", "economies of scope",
	// finance
	"资产定价", "asset pricing", "CAPM",
	"市场有效性", "market efficiency",
	"融资约束", "financing constraints",
	"代理成本", "agency cost",
}
