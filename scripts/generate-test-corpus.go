//go:build ignore

// Generates a synthetic travel knowledge base for benchmarking the
// indexer and retriever at scale.
// Usage: go run scripts/generate-test-corpus.go -products 500 -faqs 300 -policies 50 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numProducts = flag.Int("products", 500, "Number of products to generate")
	numFAQs     = flag.Int("faqs", 300, "Number of FAQs to generate")
	numPolicies = flag.Int("policies", 50, "Number of policy documents to generate")
	outputDir   = flag.String("output", "testdata/bench", "Output directory")
	seed        = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var destinations = []string{
	"巴厘岛", "普吉岛", "东京", "大阪", "首尔", "济州岛", "新加坡",
	"曼谷", "清迈", "马尔代夫", "塞班岛", "冲绳", "胡志明市", "岘港",
}

var highlights = []string{
	"五星酒店", "私人海滩", "SPA体验", "火山观景", "温泉体验", "潜水体验",
	"夜市美食", "亲子乐园", "网红打卡", "出海浮潜", "雨林探险", "古城漫步",
}

var visaTypes = []string{"免签", "落地签", "需提前办理", "电子签"}

var faqTopics = []struct {
	category  string
	questions []string
	answers   []string
}{
	{"预订", []string{"提前多久预订%s的行程？", "%s的行程怎么确认预订成功？"},
		[]string{"建议提前%d天预订，旺季需要更早。", "支付完成后%d小时内会收到确认短信。"}},
	{"退改", []string{"%s的行程可以退改吗？", "临时有事去不了%s怎么办？"},
		[]string{"出发前%d天可全额退款，之后按比例收取手续费。", "出发前%d天申请改期免手续费。"}},
	{"价格", []string{"%s的行程儿童怎么收费？", "%s的团费包含哪些项目？"},
		[]string{"2岁以下婴儿免费，2-12岁儿童收成人价%d0%%。", "团费包含机票和住宿，自费项目另计，约%d00元。"}},
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}

	if err := writeProducts(rng); err != nil {
		fmt.Fprintf(os.Stderr, "generate products: %v\n", err)
		os.Exit(1)
	}
	if err := writeFAQs(rng); err != nil {
		fmt.Fprintf(os.Stderr, "generate faqs: %v\n", err)
		os.Exit(1)
	}
	if err := writePolicies(rng); err != nil {
		fmt.Fprintf(os.Stderr, "generate policies: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d products, %d FAQs, %d policies in %s\n",
		*numProducts, *numFAQs, *numPolicies, *outputDir)
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

func writeProducts(rng *rand.Rand) error {
	var b strings.Builder
	for i := 0; i < *numProducts; i++ {
		dest := pick(rng, destinations)
		days := 3 + rng.Intn(8)
		fmt.Fprintf(&b, "- id: P%04d\n", i+1)
		fmt.Fprintf(&b, "  name: %s%d日游\n", dest, days)
		fmt.Fprintf(&b, "  price: %d\n", 2999+rng.Intn(120)*100)
		fmt.Fprintf(&b, "  duration: %d\n", days)
		fmt.Fprintf(&b, "  destination: [%s]\n", dest)
		fmt.Fprintf(&b, "  highlights: [%s, %s]\n", pick(rng, highlights), pick(rng, highlights))
		fmt.Fprintf(&b, "  visa: %s\n", pick(rng, visaTypes))
		fmt.Fprintf(&b, "  cancellation: 出发前%d天可全额退款\n", 7+rng.Intn(24))
	}
	return os.WriteFile(filepath.Join(*outputDir, "products.yaml"), []byte(b.String()), 0o644)
}

func writeFAQs(rng *rand.Rand) error {
	var b strings.Builder
	for i := 0; i < *numFAQs; i++ {
		topic := faqTopics[rng.Intn(len(faqTopics))]
		dest := pick(rng, destinations)
		q := fmt.Sprintf(topic.questions[rng.Intn(len(topic.questions))], dest)
		a := fmt.Sprintf(topic.answers[rng.Intn(len(topic.answers))], 1+rng.Intn(29))
		fmt.Fprintf(&b, "- id: F%04d\n", i+1)
		fmt.Fprintf(&b, "  question: %s\n", q)
		fmt.Fprintf(&b, "  answer: %s\n", a)
		fmt.Fprintf(&b, "  category: %s\n", topic.category)
	}
	return os.WriteFile(filepath.Join(*outputDir, "faqs.yaml"), []byte(b.String()), 0o644)
}

func writePolicies(rng *rand.Rand) error {
	for i := 0; i < *numPolicies; i++ {
		dest := pick(rng, destinations)
		var b strings.Builder
		fmt.Fprintf(&b, "# %s线路服务条款\n\n", dest)
		clauses := 4 + rng.Intn(6)
		for c := 1; c <= clauses; c++ {
			fmt.Fprintf(&b, "第%d条 %s线路出发前%d日取消的，收取团费%d0%%作为手续费。\n\n",
				c, dest, 1+rng.Intn(29), rng.Intn(9)+1)
		}
		name := fmt.Sprintf("policy-%03d.md", i+1)
		if err := os.WriteFile(filepath.Join(*outputDir, name), []byte(b.String()), 0o644); err != nil {
			return err
		}
	}
	return nil
}
