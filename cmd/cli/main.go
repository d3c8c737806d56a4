package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"charthub/internal/catalog"
	"charthub/internal/scraper"
	"charthub/pkg/database"
	"charthub/pkg/models"
)

func main() {
	global := flag.NewFlagSet("charthub", flag.ExitOnError)
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "init":
		db := mustDB()
		defer db.Close()
		if err := database.Migrate(db); err != nil {
			log.Fatalf("init failed: %v", err)
		}
		fmt.Println("schema ready")
	case "seed":
		handleSeed(ctx, rest)
	case "insert":
		handleInsert(ctx, rest)
	case "update-title":
		handleUpdateTitle(ctx, rest)
	case "update-rating":
		handleUpdateRating(ctx, rest)
	case "delete":
		handleDelete(ctx, rest)
	case "list":
		handleList(ctx, rest)
	case "count":
		handleCount(ctx, rest)
	case "reconcile":
		handleReconcile(ctx, rest)
	case "tx-demo":
		handleTxDemo(ctx)
	case "drop":
		handleDrop(rest)
	case "reindex":
		handleReindex(ctx)
	case "watch":
		handleWatch(rest)
	case "export":
		handleExport(ctx, rest)
	default:
		printUsage()
		os.Exit(1)
	}
}

func mustDB() *sql.DB {
	return database.MustOpen(database.DefaultConfig())
}

func mustRepo() (*sql.DB, *catalog.Repo) {
	db := mustDB()
	if err := database.Migrate(db); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}
	return db, catalog.NewRepo(db)
}

func handleSeed(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	_ = fs.Parse(args)

	db, repo := mustRepo()
	defer db.Close()

	sum := scraper.Ingest(ctx, repo, sampleChart())
	fmt.Printf("seeded: processed=%d failed=%d\n", sum.Processed, sum.Failed)
}

func handleInsert(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	key := fs.String("key", "", "natural key (defaults to derived title|year)")
	title := fs.String("title", "", "title (required)")
	year := fs.Int("year", 0, "release year")
	rating := fs.Float64("rating", 0, "score")
	votes := fs.Int("votes", 0, "vote count")
	rank := fs.Int("rank", 0, "chart rank")
	director := fs.String("director", "", "director")
	pageURL := fs.String("url", "", "detail page url")
	genres := fs.String("genres", "", "comma-separated genres")
	countries := fs.String("countries", "", "comma-separated countries")
	_ = fs.Parse(args)

	if strings.TrimSpace(*title) == "" {
		log.Fatal("title is required")
	}

	it := models.ChartItem{
		Rank:     *rank,
		Title:    *title,
		Director: *director,
		URL:      *pageURL,
	}
	if *year > 0 {
		it.Year = year
	}
	if *rating > 0 {
		it.Rating = rating
	}
	if *votes > 0 {
		it.Votes = votes
	}
	if *genres != "" {
		it.Genres = strings.Split(*genres, ",")
	}
	if *countries != "" {
		it.Countries = strings.Split(*countries, ",")
	}

	naturalKey := strings.TrimSpace(*key)
	if naturalKey == "" {
		naturalKey = scraper.NaturalKey(it)
	}

	db, repo := mustRepo()
	defer db.Close()

	id, err := repo.UpsertMovie(ctx, naturalKey, it, time.Now().UTC())
	if err != nil {
		log.Fatalf("insert failed: %v", err)
	}
	if err := repo.MapDimensions(ctx, id, it.Genres, catalog.Genres); err != nil {
		log.Fatalf("map genres failed: %v", err)
	}
	if err := repo.MapDimensions(ctx, id, it.Countries, catalog.Countries); err != nil {
		log.Fatalf("map countries failed: %v", err)
	}
	fmt.Printf("upserted id=%d key=%s\n", id, naturalKey)
}

func handleUpdateTitle(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("update-title", flag.ExitOnError)
	id := fs.Int64("id", 0, "movie id")
	title := fs.String("title", "", "new title")
	_ = fs.Parse(args)
	if *id <= 0 || strings.TrimSpace(*title) == "" {
		log.Fatal("id and title are required")
	}

	db, repo := mustRepo()
	defer db.Close()

	n, err := repo.UpdateTitle(ctx, *id, *title)
	if err != nil {
		log.Fatalf("update-title failed: %v", err)
	}
	fmt.Printf("updated %d row(s)\n", n)
}

func handleUpdateRating(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("update-rating", flag.ExitOnError)
	id := fs.Int64("id", 0, "movie id")
	rating := fs.Float64("rating", 0, "new score")
	_ = fs.Parse(args)
	if *id <= 0 {
		log.Fatal("id is required")
	}

	db, repo := mustRepo()
	defer db.Close()

	n, err := repo.UpdateRating(ctx, *id, *rating)
	if err != nil {
		log.Fatalf("update-rating failed: %v", err)
	}
	fmt.Printf("updated %d row(s)\n", n)
}

func handleDelete(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.Int64("id", 0, "movie id")
	_ = fs.Parse(args)
	if *id <= 0 {
		log.Fatal("id is required")
	}

	db, repo := mustRepo()
	defer db.Close()

	ok, err := repo.Delete(ctx, *id)
	if err != nil {
		log.Fatalf("delete failed: %v", err)
	}
	if !ok {
		fmt.Println("no such movie")
		return
	}
	fmt.Println("deleted 1 row")
}

func listFlags(fs *flag.FlagSet) (*string, *string, *string, *int, *string, *int, *int) {
	q := fs.String("q", "", "keyword in title/director")
	genre := fs.String("genre", "", "genre filter")
	country := fs.String("country", "", "country filter")
	year := fs.Int("year", 0, "release year filter")
	order := fs.String("order", "rank", "sort order: rank|id|rating|time")
	limit := fs.Int("limit", 50, "page size")
	offset := fs.Int("offset", 0, "offset")
	return q, genre, country, year, order, limit, offset
}

func handleList(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	q, genre, country, year, order, limit, offset := listFlags(fs)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	_ = fs.Parse(args)

	db, repo := mustRepo()
	defer db.Close()

	query := catalog.ListQuery{
		Q: *q, Genre: *genre, Country: *country, Year: *year,
		Order: *order, Limit: *limit, Offset: *offset,
	}
	items, err := repo.List(ctx, query)
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}

	if *asJSON {
		printJSON(items)
		return
	}
	for _, m := range items {
		year := "----"
		if m.Year != nil {
			year = fmt.Sprintf("%d", *m.Year)
		}
		rating := " -  "
		if m.Rating != nil {
			rating = fmt.Sprintf("%.1f", *m.Rating)
		}
		fmt.Printf("%5d  #%-4d %s  %s  %s\n", m.ID, m.Rank, year, rating, m.Title)
	}
	fmt.Printf("(%d rows)\n", len(items))
}

func handleCount(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	q, genre, country, year, _, _, _ := listFlags(fs)
	_ = fs.Parse(args)

	db, repo := mustRepo()
	defer db.Close()

	total, err := repo.Count(ctx, catalog.ListQuery{
		Q: *q, Genre: *genre, Country: *country, Year: *year,
	})
	if err != nil {
		log.Fatalf("count failed: %v", err)
	}
	fmt.Println(total)
}

func handleReconcile(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	chunk := fs.Int("chunk", 500, "delete chunk size")
	_ = fs.Parse(args)

	db, repo := mustRepo()
	defer db.Close()

	removed, err := repo.Reconcile(ctx, *chunk)
	if err != nil {
		log.Fatalf("reconcile failed: %v", err)
	}
	fmt.Printf("removed %d duplicate row(s)\n", removed)
}

// handleTxDemo shows the transaction helper doing its job: the second
// insert hits the source_key unique index, the whole transaction rolls
// back, and the row count is unchanged.
func handleTxDemo(ctx context.Context) {
	db, repo := mustRepo()
	defer db.Close()

	before, err := repo.Count(ctx, catalog.ListQuery{})
	if err != nil {
		log.Fatalf("count failed: %v", err)
	}

	err = database.WithTx(ctx, db, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO movies (source_key, title, scraped_at) VALUES (?, ?, ?)
		`, "tx-demo-key", "first write", now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO movies (source_key, title, scraped_at) VALUES (?, ?, ?)
		`, "tx-demo-key", "second write, same key", now)
		return err
	})
	if err == nil {
		log.Fatal("expected a unique constraint violation")
	}
	fmt.Printf("transaction rolled back: %v\n", err)

	after, err := repo.Count(ctx, catalog.ListQuery{})
	if err != nil {
		log.Fatalf("count failed: %v", err)
	}
	fmt.Printf("rows before=%d after=%d\n", before, after)
}

func handleDrop(args []string) {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	yes := fs.Bool("yes", false, "really drop all tables")
	_ = fs.Parse(args)
	if !*yes {
		log.Fatal("refusing to drop without -yes")
	}

	db := mustDB()
	defer db.Close()

	if err := database.Drop(db); err != nil {
		log.Fatalf("drop failed: %v", err)
	}
	fmt.Println("all tables dropped")
}

func handleReindex(ctx context.Context) {
	db, repo := mustRepo()
	defer db.Close()

	if err := repo.Reindex(ctx); err != nil {
		log.Fatalf("reindex failed: %v", err)
	}
	fmt.Println("ids re-sequenced")
}

func handleWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:7070", "TCP feed address")
	pretty := fs.Bool("pretty", true, "pretty print JSON events")
	_ = fs.Parse(args)

	for {
		if err := watchFeed(*addr, *pretty); err != nil {
			log.Printf("[watch] disconnected: %v", err)
		}
		time.Sleep(1 * time.Second)
	}
}

func watchFeed(addr string, pretty bool) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[watch] connected to %s", addr)
	reader := bufio.NewScanner(conn)
	for reader.Scan() {
		line := reader.Bytes()
		if !pretty {
			fmt.Println(string(line))
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			fmt.Println(string(line))
			continue
		}
		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
	if err := reader.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}

func handleExport(ctx context.Context, args []string) {
	if len(args) == 0 {
		log.Fatal("usage: charthub export <json|csv> [flags]")
	}
	format := args[0]

	fs := flag.NewFlagSet("export "+format, flag.ExitOnError)
	out := fs.String("out", "data/movies."+format, "output path")
	limit := fs.Int("limit", 500, "max rows to export")
	_ = fs.Parse(args[1:])

	db, repo := mustRepo()
	defer db.Close()

	items, err := repo.List(ctx, catalog.ListQuery{Order: "rank", Limit: *limit})
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}

	switch format {
	case "json":
		err = writeJSON(*out, items)
	case "csv":
		err = writeCSV(*out, items)
	default:
		log.Fatal("usage: charthub export <json|csv>")
	}
	if err != nil {
		log.Fatalf("write failed: %v", err)
	}
	log.Printf("exported %d row(s) to %s", len(items), *out)
}

func writeJSON(path string, items []models.Movie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeCSV(path string, items []models.Movie) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"id", "source_key", "rank", "title", "original_title", "year", "rating", "votes", "director", "url",
	}); err != nil {
		return err
	}
	for _, m := range items {
		year, rating, votes := "", "", ""
		if m.Year != nil {
			year = fmt.Sprintf("%d", *m.Year)
		}
		if m.Rating != nil {
			rating = fmt.Sprintf("%.1f", *m.Rating)
		}
		if m.Votes != nil {
			votes = fmt.Sprintf("%d", *m.Votes)
		}
		if err := writer.Write([]string{
			fmt.Sprintf("%d", m.ID),
			m.SourceKey,
			fmt.Sprintf("%d", m.Rank),
			m.Title,
			m.OriginalTitle,
			year,
			rating,
			votes,
			m.Director,
			m.URL,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
}

func sampleChart() []models.ChartItem {
	year := func(y int) *int { return &y }
	rating := func(r float64) *float64 { return &r }
	return []models.ChartItem{
		{Rank: 1, ExternalID: "1292052", Title: "肖申克的救赎", OriginalTitle: "The Shawshank Redemption",
			Year: year(1994), Rating: rating(9.7), Director: "弗兰克·德拉邦特",
			Genres: []string{"犯罪", "剧情"}, Countries: []string{"美国"}},
		{Rank: 2, ExternalID: "1291546", Title: "霸王别姬",
			Year: year(1993), Rating: rating(9.6), Director: "陈凯歌",
			Genres: []string{"剧情", "爱情"}, Countries: []string{"中国大陆", "中国香港"}},
		{Rank: 3, ExternalID: "1292720", Title: "阿甘正传", OriginalTitle: "Forrest Gump",
			Year: year(1994), Rating: rating(9.5), Director: "罗伯特·泽米吉斯",
			Genres: []string{"剧情", "爱情"}, Countries: []string{"美国"}},
		{Rank: 4, ExternalID: "1291561", Title: "千与千寻", OriginalTitle: "千と千尋の神隠し",
			Year: year(2001), Rating: rating(9.4), Director: "宫崎骏",
			Genres: []string{"动画", "奇幻"}, Countries: []string{"日本"}},
		{Rank: 5, ExternalID: "1295124", Title: "辛德勒的名单", OriginalTitle: "Schindler's List",
			Year: year(1993), Rating: rating(9.5), Director: "史蒂文·斯皮尔伯格",
			Genres: []string{"剧情", "历史", "战争"}, Countries: []string{"美国"}},
	}
}

func printUsage() {
	fmt.Println("charthub <command> [flags]")
	fmt.Println("commands:")
	fmt.Println("  init                         create the schema")
	fmt.Println("  seed                         load a small sample chart")
	fmt.Println("  insert -title ... [flags]    upsert one movie")
	fmt.Println("  update-title -id -title")
	fmt.Println("  update-rating -id -rating")
	fmt.Println("  delete -id")
	fmt.Println("  list [-q -genre -country -year -order -limit -offset -json]")
	fmt.Println("  count [-q -genre -country -year]")
	fmt.Println("  reconcile [-chunk]           remove natural-key duplicates")
	fmt.Println("  tx-demo                      show transactional rollback")
	fmt.Println("  drop -yes                    drop all tables")
	fmt.Println("  reindex                      re-sequence surrogate ids")
	fmt.Println("  watch [-addr]                follow the live event feed")
	fmt.Println("  export json|csv [-out -limit]")
}
