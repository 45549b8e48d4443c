package query

// parser is a recursive-descent parser over the token stream of a single
// statement. A trailing semicolon is accepted but not required.
type parser struct {
	tokens []token
	pos    int
}

// Parse turns a statement string into its AST.
func Parse(input string) (Statement, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	if len(tokens) == 0 {
		return nil, parseErrorf("empty statement")
	}

	p := &parser{tokens: tokens}

	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}

	p.accept(tokSymbol, ";")

	if !p.eof() {
		return nil, parseErrorf("unexpected input after statement: %q", p.peek().text)
	}

	return stmt, nil
}

func (p *parser) parseStatement() (Statement, error) {
	switch {
	case p.accept(tokKeyword, "CREATE"):
		if p.accept(tokKeyword, "KEYSPACE") {
			return p.parseCreateKeyspace()
		}

		if p.accept(tokKeyword, "TABLE") {
			return p.parseCreateTable()
		}

		return nil, parseErrorf("expected KEYSPACE or TABLE after CREATE")
	case p.accept(tokKeyword, "USE"):
		name, err := p.identifier("keyspace name")
		if err != nil {
			return nil, err
		}

		return &UseStatement{Keyspace: name}, nil
	case p.accept(tokKeyword, "INSERT"):
		return p.parseInsert()
	case p.accept(tokKeyword, "UPDATE"):
		return p.parseUpdate()
	case p.accept(tokKeyword, "DELETE"):
		return p.parseDelete()
	case p.accept(tokKeyword, "SELECT"):
		return p.parseSelect()
	default:
		return nil, parseErrorf("unexpected token %q", p.peek().text)
	}
}

// CREATE KEYSPACE <name> WITH REPLICATION = {'class': 'SimpleStrategy',
// 'replication_factor': <n>}
func (p *parser) parseCreateKeyspace() (Statement, error) {
	name, err := p.identifier("keyspace name")
	if err != nil {
		return nil, err
	}

	if err := p.expectKeywords("WITH", "REPLICATION"); err != nil {
		return nil, err
	}

	if !p.accept(tokOperator, "=") {
		return nil, parseErrorf("expected = after REPLICATION")
	}

	options, err := p.parseMap()
	if err != nil {
		return nil, err
	}

	factor, err := parseReplicationFactor(options)
	if err != nil {
		return nil, err
	}

	return &CreateKeyspaceStatement{Name: name, ReplicationFactor: factor}, nil
}

// parseMap parses {'key': 'value', ...}. Values may be strings or numbers.
func (p *parser) parseMap() (map[string]string, error) {
	if !p.accept(tokSymbol, "{") {
		return nil, parseErrorf("expected { to open a map")
	}

	options := make(map[string]string)

	for {
		key := p.peek()
		if key.kind != tokString {
			return nil, parseErrorf("expected quoted map key, got %q", key.text)
		}
		p.pos++

		if !p.accept(tokSymbol, ":") {
			return nil, parseErrorf("expected : after map key %q", key.text)
		}

		value := p.peek()
		if value.kind != tokString && value.kind != tokNumber {
			return nil, parseErrorf("expected map value, got %q", value.text)
		}
		p.pos++

		options[key.text] = value.text

		if p.accept(tokSymbol, ",") {
			continue
		}

		break
	}

	if !p.accept(tokSymbol, "}") {
		return nil, parseErrorf("expected } to close the map")
	}

	return options, nil
}

// CREATE TABLE <name> (<col> <type>, ..., PRIMARY KEY ((pk, ...), ck, ...))
func (p *parser) parseCreateTable() (Statement, error) {
	name, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}

	if !p.accept(tokSymbol, "(") {
		return nil, parseErrorf("expected ( after table name")
	}

	stmt := &CreateTableStatement{Name: name}
	sawPrimaryKey := false

	for {
		if p.accept(tokKeyword, "PRIMARY") {
			if !p.accept(tokKeyword, "KEY") {
				return nil, parseErrorf("expected KEY after PRIMARY")
			}

			if sawPrimaryKey {
				return nil, parseErrorf("duplicate PRIMARY KEY clause")
			}

			if err := p.parsePrimaryKey(stmt); err != nil {
				return nil, err
			}

			sawPrimaryKey = true
		} else {
			colName, err := p.identifier("column name")
			if err != nil {
				return nil, err
			}

			colType, err := p.identifier("column type")
			if err != nil {
				return nil, err
			}

			stmt.Columns = append(stmt.Columns, ColumnDef{Name: colName, Type: colType})
		}

		if p.accept(tokSymbol, ",") {
			continue
		}

		break
	}

	if !p.accept(tokSymbol, ")") {
		return nil, parseErrorf("expected ) to close the column list")
	}

	if !sawPrimaryKey {
		return nil, parseErrorf("table %q has no PRIMARY KEY clause", name)
	}

	return stmt, nil
}

// parsePrimaryKey parses the parenthesized key clause. A nested group names
// the partition key columns; without one the first column is the partition
// key. Remaining columns are the clustering key.
func (p *parser) parsePrimaryKey(stmt *CreateTableStatement) error {
	if !p.accept(tokSymbol, "(") {
		return parseErrorf("expected ( after PRIMARY KEY")
	}

	if p.accept(tokSymbol, "(") {
		for {
			name, err := p.identifier("partition key column")
			if err != nil {
				return err
			}

			stmt.PartitionKey = append(stmt.PartitionKey, name)

			if p.accept(tokSymbol, ",") {
				continue
			}

			break
		}

		if !p.accept(tokSymbol, ")") {
			return parseErrorf("expected ) to close the partition key")
		}
	} else {
		name, err := p.identifier("partition key column")
		if err != nil {
			return err
		}

		stmt.PartitionKey = append(stmt.PartitionKey, name)
	}

	for p.accept(tokSymbol, ",") {
		name, err := p.identifier("clustering key column")
		if err != nil {
			return err
		}

		stmt.ClusteringKey = append(stmt.ClusteringKey, name)
	}

	if !p.accept(tokSymbol, ")") {
		return parseErrorf("expected ) to close PRIMARY KEY")
	}

	return nil
}

// INSERT INTO <table> (<cols>) VALUES (<vals>) [, (<vals>)]...
func (p *parser) parseInsert() (Statement, error) {
	if !p.accept(tokKeyword, "INTO") {
		return nil, parseErrorf("expected INTO after INSERT")
	}

	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}

	stmt := &InsertStatement{Table: table}

	if !p.accept(tokSymbol, "(") {
		return nil, parseErrorf("expected ( before the column list")
	}

	for {
		name, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}

		stmt.Columns = append(stmt.Columns, name)

		if p.accept(tokSymbol, ",") {
			continue
		}

		break
	}

	if !p.accept(tokSymbol, ")") {
		return nil, parseErrorf("expected ) after the column list")
	}

	if !p.accept(tokKeyword, "VALUES") {
		return nil, parseErrorf("expected VALUES")
	}

	for {
		if !p.accept(tokSymbol, "(") {
			return nil, parseErrorf("expected ( before a value list")
		}

		var values []string

		for {
			value, err := p.literal()
			if err != nil {
				return nil, err
			}

			values = append(values, value)

			if p.accept(tokSymbol, ",") {
				continue
			}

			break
		}

		if !p.accept(tokSymbol, ")") {
			return nil, parseErrorf("expected ) after a value list")
		}

		if len(values) != len(stmt.Columns) {
			return nil, parseErrorf(
				"value count %d does not match column count %d",
				len(values), len(stmt.Columns),
			)
		}

		stmt.Rows = append(stmt.Rows, values)

		if p.accept(tokSymbol, ",") {
			continue
		}

		break
	}

	return stmt, nil
}

// UPDATE <table> SET <col> = <val> [, ...] WHERE <expr>
func (p *parser) parseUpdate() (Statement, error) {
	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}

	if !p.accept(tokKeyword, "SET") {
		return nil, parseErrorf("expected SET")
	}

	stmt := &UpdateStatement{Table: table}

	for {
		column, err := p.identifier("column name")
		if err != nil {
			return nil, err
		}

		if !p.accept(tokOperator, "=") {
			return nil, parseErrorf("expected = in assignment to %q", column)
		}

		value, err := p.literal()
		if err != nil {
			return nil, err
		}

		stmt.Assignments = append(stmt.Assignments, Assignment{Column: column, Value: value})

		if p.accept(tokSymbol, ",") {
			continue
		}

		break
	}

	stmt.Where, err = p.parseWhere()
	if err != nil {
		return nil, err
	}

	return stmt, nil
}

// DELETE FROM <table> WHERE <expr>
func (p *parser) parseDelete() (Statement, error) {
	if !p.accept(tokKeyword, "FROM") {
		return nil, parseErrorf("expected FROM after DELETE")
	}

	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}

	where, err := p.parseWhere()
	if err != nil {
		return nil, err
	}

	return &DeleteStatement{Table: table, Where: where}, nil
}

// SELECT *|<cols> FROM <table> WHERE <expr> [ORDER BY <col> [ASC|DESC], ...]
func (p *parser) parseSelect() (Statement, error) {
	stmt := &SelectStatement{}

	if !p.accept(tokSymbol, "*") {
		for {
			name, err := p.identifier("column name")
			if err != nil {
				return nil, err
			}

			stmt.Columns = append(stmt.Columns, name)

			if p.accept(tokSymbol, ",") {
				continue
			}

			break
		}
	}

	if !p.accept(tokKeyword, "FROM") {
		return nil, parseErrorf("expected FROM")
	}

	table, err := p.identifier("table name")
	if err != nil {
		return nil, err
	}
	stmt.Table = table

	stmt.Where, err = p.parseWhere()
	if err != nil {
		return nil, err
	}

	if p.accept(tokKeyword, "ORDER") {
		if !p.accept(tokKeyword, "BY") {
			return nil, parseErrorf("expected BY after ORDER")
		}

		for {
			column, err := p.identifier("ordering column")
			if err != nil {
				return nil, err
			}

			ordering := Ordering{Column: column}

			if p.accept(tokKeyword, "DESC") {
				ordering.Descending = true
			} else {
				p.accept(tokKeyword, "ASC")
			}

			stmt.OrderBy = append(stmt.OrderBy, ordering)

			if p.accept(tokSymbol, ",") {
				continue
			}

			break
		}
	}

	return stmt, nil
}

func (p *parser) parseWhere() (Expression, error) {
	if !p.accept(tokKeyword, "WHERE") {
		return nil, parseErrorf("expected WHERE")
	}

	return p.parseOr()
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.accept(tokKeyword, "OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = &LogicalExpr{Operator: "OR", Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.accept(tokKeyword, "AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		left = &LogicalExpr{Operator: "AND", Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseNot() (Expression, error) {
	if p.accept(tokKeyword, "NOT") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &NotExpr{Inner: inner}, nil
	}

	return p.parsePrimaryExpr()
}

func (p *parser) parsePrimaryExpr() (Expression, error) {
	if p.accept(tokSymbol, "(") {
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if !p.accept(tokSymbol, ")") {
			return nil, parseErrorf("expected ) to close the expression")
		}

		return expr, nil
	}

	column, err := p.identifier("column name")
	if err != nil {
		return nil, err
	}

	op := p.peek()
	if op.kind != tokOperator {
		return nil, parseErrorf("expected comparison operator after %q", column)
	}
	p.pos++

	value, err := p.literal()
	if err != nil {
		return nil, err
	}

	return &ComparisonExpr{Column: column, Operator: op.text, Value: value}, nil
}

func (p *parser) identifier(what string) (string, error) {
	tok := p.peek()
	if tok.kind != tokIdentifier {
		return "", parseErrorf("expected %s, got %q", what, tok.text)
	}

	p.pos++

	return tok.text, nil
}

// literal accepts a string, a number, or a bare identifier (booleans are
// written unquoted). The textual form is kept as-is; typing happens against
// the schema at planning time.
func (p *parser) literal() (string, error) {
	tok := p.peek()

	switch tok.kind {
	case tokString, tokNumber, tokIdentifier:
		p.pos++
		return tok.text, nil
	default:
		return "", parseErrorf("expected a value, got %q", tok.text)
	}
}

func (p *parser) peek() token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}

	return token{}
}

func (p *parser) accept(kind tokenKind, text string) bool {
	if p.pos < len(p.tokens) && p.tokens[p.pos].is(kind, text) {
		p.pos++
		return true
	}

	return false
}

func (p *parser) expectKeywords(words ...string) error {
	for _, word := range words {
		if !p.accept(tokKeyword, word) {
			return parseErrorf("expected %s", word)
		}
	}

	return nil
}

func (p *parser) eof() bool {
	return p.pos >= len(p.tokens)
}
