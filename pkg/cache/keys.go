package cache

import "unicode/utf8"

// NamespaceSeparator 命名空间与逻辑键之间的分隔符
const NamespaceSeparator = ":"

// BuildKey 由逻辑键和可选的命名空间生成物理存储键。
func BuildKey(key, namespace string) string {
	if namespace == "" {
		return key
	}
	return namespace + NamespaceSeparator + key
}

// MatchPattern 判断 s 是否匹配 shell 风格的通配符模式。
// "*" 匹配任意长度（包括 ":"），"?" 匹配单个字符，"\" 转义下一个字符。
func MatchPattern(pattern, s string) bool {
	// 经典的单回溯点贪心匹配，最坏 O(len(pattern)*len(s))
	px, sx := 0, 0
	starPx, starSx := -1, -1

	for sx < len(s) {
		if px < len(pattern) {
			pc, pw := utf8.DecodeRuneInString(pattern[px:])
			switch pc {
			case '*':
				starPx, starSx = px, sx
				px += pw
				continue
			case '?':
				_, sw := utf8.DecodeRuneInString(s[sx:])
				px += pw
				sx += sw
				continue
			case '\\':
				if px+pw < len(pattern) {
					ec, ew := utf8.DecodeRuneInString(pattern[px+pw:])
					sc, sw := utf8.DecodeRuneInString(s[sx:])
					if ec == sc {
						px += pw + ew
						sx += sw
						continue
					}
				}
			default:
				sc, sw := utf8.DecodeRuneInString(s[sx:])
				if pc == sc {
					px += pw
					sx += sw
					continue
				}
			}
		}

		if starPx < 0 {
			return false
		}
		// 回到最近的 "*"，让它多吞一个字符
		_, sw := utf8.DecodeRuneInString(s[starSx:])
		starSx += sw
		px, sx = starPx+1, starSx
	}

	for px < len(pattern) && pattern[px] == '*' {
		px++
	}
	return px == len(pattern)
}
